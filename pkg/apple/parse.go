package apple

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nmasdoufi/warranty/pkg/config"
	"github.com/nmasdoufi/warranty/pkg/inventory"
)

// Keys used by the list and JSON warranty formats.
const (
	KeySerial       = "SERIAL_ID"
	KeyDescription  = "PROD_DESCR"
	KeyPurchaseDate = "PURCHASE_DATE"
	KeyWarrantyType = "HW_COVERAGE_DESC"
	KeyCoverageEnd  = "COV_END_DATE"
	KeyErrorCode    = "ERROR_CODE"
	KeyErrorDesc    = "ERROR_DESC"
)

// Markers in the product and HTML warranty responses.
const (
	productOpen      = "<configCode>"
	productClose     = "</configCode>"
	hwSectionMarker  = "warrantycheck.displayHWSupportInfo"
	coverageMarker   = "Repairs and Service Coverage: "
	expirationMarker = "Estimated Expiration Date: "
)

var (
	keyPattern  = regexp.MustCompile(`^[A-Z][A-Z0-9_]+$`)
	dateLayouts = []string{
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
		"January 02, 2006",
		"Jan 02, 2006",
		"01/02/2006",
	}
)

// Fields is the flat key/value view of a list or JSON warranty response.
type Fields map[string]string

// Warranty is the parsed result of a warranty lookup.
type Warranty struct {
	Serial       string
	Description  string
	WarrantyType string
	PurchaseDate *time.Time
	Coverage     inventory.Coverage
}

// ParseProductDescription extracts the description between the configCode
// markers.
func ParseProductDescription(body string) (string, error) {
	_, rest, ok := strings.Cut(body, productOpen)
	if !ok {
		return "", &ParseError{Source: "product", Reason: "missing " + productOpen}
	}
	desc, _, ok := strings.Cut(rest, productClose)
	if !ok {
		return "", &ParseError{Source: "product", Reason: "missing " + productClose}
	}
	return strings.TrimSpace(html.UnescapeString(desc)), nil
}

// ParseDelimitedList splits body on double quotes; each identifier token is a
// key. A quoted value sits two tokens later and is consumed so it is not
// mistaken for a key. An unquoted value (number, true, null) lives in the
// separator token itself. The first occurrence of a key wins.
func ParseDelimitedList(body string) (Fields, error) {
	tokens := strings.Split(strings.TrimSpace(body), `"`)
	fields := Fields{}
	for i := 0; i+1 < len(tokens); i++ {
		key := tokens[i]
		if !keyPattern.MatchString(key) {
			continue
		}
		sep := strings.TrimSpace(tokens[i+1])
		var value string
		switch {
		case sep == ":" && i+2 < len(tokens):
			value = tokens[i+2]
			i += 2
		case strings.HasPrefix(sep, ":"):
			value = bareValue(sep[1:])
			i++
		default:
			continue
		}
		if _, seen := fields[key]; !seen {
			fields[key] = value
		}
	}
	if len(fields) == 0 {
		return nil, &ParseError{Source: "warranty", Reason: "no key/value pairs in delimited list"}
	}
	return fields, nil
}

// bareValue trims the list punctuation around an unquoted value. null is empty.
func bareValue(raw string) string {
	v := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), ",})]"))
	if v == "null" {
		return ""
	}
	return v
}

// ParseEmbeddedJSON strips whatever wraps the outermost JSON object (a
// callback name, stray characters) and decodes it.
func ParseEmbeddedJSON(body string) (Fields, error) {
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return nil, &ParseError{Source: "warranty", Reason: "no JSON object in response"}
	}
	dec := json.NewDecoder(strings.NewReader(body[start : end+1]))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, &ParseError{Source: "warranty", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	fields := Fields{}
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, &ParseError{Source: "warranty", Reason: fmt.Sprintf("field %s: %v", k, err)}
			}
			fields[k] = string(bytes.TrimSpace(b))
		}
	}
	return fields, nil
}

// WarrantyFromFields maps list/JSON keys onto a Warranty. Missing keys leave
// fields absent; a response carrying none of the known keys is unparseable.
func WarrantyFromFields(f Fields) (Warranty, error) {
	if msg := strings.TrimSpace(f[KeyErrorDesc] + " " + f[KeyErrorCode]); msg != "" {
		return Warranty{}, &ParseError{Source: "warranty", Reason: "upstream error: " + msg}
	}
	known := 0
	for _, k := range []string{KeySerial, KeyDescription, KeyPurchaseDate, KeyWarrantyType, KeyCoverageEnd} {
		if _, ok := f[k]; ok {
			known++
		}
	}
	if known == 0 {
		return Warranty{}, &ParseError{Source: "warranty", Reason: "none of the expected keys present"}
	}
	w := Warranty{
		Serial:       strings.TrimSpace(f[KeySerial]),
		Description:  strings.TrimSpace(html.UnescapeString(f[KeyDescription])),
		WarrantyType: strings.TrimSpace(html.UnescapeString(f[KeyWarrantyType])),
	}
	if raw := strings.TrimSpace(f[KeyPurchaseDate]); raw != "" {
		t, err := parseDate(KeyPurchaseDate, raw)
		if err != nil {
			return Warranty{}, err
		}
		w.PurchaseDate = &t
	}
	end, ok := f[KeyCoverageEnd]
	switch {
	case !ok:
		w.Coverage = inventory.Coverage{Status: inventory.CoverageUnknown}
	case strings.TrimSpace(end) == "":
		w.Coverage = inventory.Coverage{Status: inventory.CoverageExpired}
	default:
		t, err := parseDate(KeyCoverageEnd, end)
		if err != nil {
			return Warranty{}, err
		}
		w.Coverage = inventory.ActiveUntil(t)
	}
	return w, nil
}

// ParseCoverageHTML scans the HTML/JS fragment returned by the current
// warranty page.
func ParseCoverageHTML(body string) (Warranty, error) {
	section := body
	if _, after, ok := strings.Cut(body, hwSectionMarker); ok {
		section = after
	}
	_, rest, ok := strings.Cut(section, coverageMarker)
	if !ok {
		return Warranty{}, &ParseError{Source: "warranty", Reason: "missing " + strings.TrimSpace(coverageMarker)}
	}
	if !strings.HasPrefix(strings.TrimLeft(rest, `'", `), "Active") {
		return Warranty{Coverage: inventory.Coverage{Status: inventory.CoverageExpired}}, nil
	}
	w := Warranty{Coverage: inventory.Coverage{Status: inventory.CoverageActive}}
	_, exp, ok := strings.Cut(rest, expirationMarker)
	if !ok {
		return w, nil
	}
	if end := strings.IndexAny(exp, `<'"`); end >= 0 {
		exp = exp[:end]
	}
	t, err := parseDate("expiration", html.UnescapeString(exp))
	if err != nil {
		return Warranty{}, err
	}
	w.Coverage = inventory.ActiveUntil(t)
	return w, nil
}

// ParseWarranty parses body in the given format. FormatAuto tries JSON, then
// the delimited list, then the HTML marker scan.
func ParseWarranty(format, body string) (Warranty, error) {
	switch format {
	case config.FormatJSON:
		f, err := ParseEmbeddedJSON(body)
		if err != nil {
			return Warranty{}, err
		}
		return WarrantyFromFields(f)
	case config.FormatList:
		f, err := ParseDelimitedList(body)
		if err != nil {
			return Warranty{}, err
		}
		return WarrantyFromFields(f)
	case config.FormatHTML:
		return ParseCoverageHTML(body)
	case config.FormatAuto:
		var reasons []string
		for _, f := range []string{config.FormatJSON, config.FormatList, config.FormatHTML} {
			w, err := ParseWarranty(f, body)
			if err == nil {
				return w, nil
			}
			reasons = append(reasons, fmt.Sprintf("%s: %v", f, err))
		}
		return Warranty{}, &ParseError{Source: "warranty", Reason: "no known format matched (" + strings.Join(reasons, "; ") + ")"}
	default:
		return Warranty{}, fmt.Errorf("unknown warranty format %q", format)
	}
}

func parseDate(field, raw string) (time.Time, error) {
	s := strings.ReplaceAll(raw, "\u00a0", " ")
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParseError{Source: "warranty", Reason: fmt.Sprintf("%s %q is not a date", field, raw)}
}
