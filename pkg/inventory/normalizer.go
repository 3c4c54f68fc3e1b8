package inventory

import (
	"strings"
	"time"

	"github.com/nmasdoufi/warranty/pkg/asd"
)

// NormalizeSerial trims and uppercases a serial. No format checks happen
// here; malformed serials fail at lookup time.
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// RecordInput collects the pieces of a record as the lookups return.
type RecordInput struct {
	Serial       string
	Description  string
	WarrantyType string
	PurchaseDate *time.Time
	Coverage     Coverage
	Manufactured *time.Time
	ASDVersion   string
}

// NewWarrantyRecord assembles the final record. The serial is normalized, text
// fields are trimmed and a manufacture estimate is dropped when an explicit
// expiration exists.
func NewWarrantyRecord(in RecordInput) WarrantyRecord {
	rec := WarrantyRecord{
		Serial:       NormalizeSerial(in.Serial),
		Description:  strings.TrimSpace(in.Description),
		WarrantyType: strings.TrimSpace(in.WarrantyType),
		PurchaseDate: in.PurchaseDate,
		Coverage:     in.Coverage,
		Manufactured: in.Manufactured,
		ASDVersion:   strings.TrimSpace(in.ASDVersion),
	}
	if rec.Coverage.HasExpiration() {
		rec.Manufactured = nil
	}
	if rec.ASDVersion == "" {
		rec.ASDVersion = asd.Unknown
	}
	return rec
}
