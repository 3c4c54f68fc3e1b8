// Package serial decodes manufacture dates and model codes embedded in Apple
// serial numbers.
package serial

import (
	"fmt"
	"strings"
	"time"
)

// Code tables. Lookups take the first matching position.
const (
	// legacyYearCodes: index 2 of an 11-character serial, position = years after 2000.
	legacyYearCodes = "3456789012345"
	// halfYearCodes: index 3 of a 12-character serial, position/2 = years after
	// 2010, position%2 selects the second half of that year.
	halfYearCodes = "CDFGHJKLMNPQRSTVWXYZ"
	// weekCodes: index 4 of a 12-character serial, position = week in the half.
	weekCodes = "0123456789CDFGHJKLMNPQRTVWXY"
)

// DecodeError reports a serial that cannot be decoded.
type DecodeError struct {
	Serial string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode serial %s: %s", e.Serial, e.Reason)
}

// Estimate returns the Monday of the ISO week in which the device was made.
// ok is false when the serial length has no known encoding.
func Estimate(s string) (t time.Time, ok bool, err error) {
	switch len(s) {
	case 11:
		t, err = decodeLegacy(s)
	case 12:
		t, err = decodeHalfYear(s)
	default:
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func decodeLegacy(s string) (time.Time, error) {
	pos := strings.IndexByte(legacyYearCodes, s[2])
	if pos < 0 {
		return time.Time{}, &DecodeError{Serial: s, Reason: fmt.Sprintf("unknown year code %q", s[2])}
	}
	if !isDigit(s[3]) || !isDigit(s[4]) {
		return time.Time{}, &DecodeError{Serial: s, Reason: fmt.Sprintf("week %q is not numeric", s[3:5])}
	}
	week := int(s[3]-'0')*10 + int(s[4]-'0')
	return isoWeekMonday(s, 2000+pos, week)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func decodeHalfYear(s string) (time.Time, error) {
	pos := strings.IndexByte(halfYearCodes, s[3])
	if pos < 0 {
		return time.Time{}, &DecodeError{Serial: s, Reason: fmt.Sprintf("unknown year code %q", s[3])}
	}
	wpos := strings.IndexByte(weekCodes, s[4])
	if wpos < 0 {
		return time.Time{}, &DecodeError{Serial: s, Reason: fmt.Sprintf("unknown week code %q", s[4])}
	}
	half := pos % 2
	return isoWeekMonday(s, 2010+pos/2, wpos+26*half)
}

// isoWeekMonday returns the Monday of ISO week (year, week), rejecting weeks
// the year does not have.
func isoWeekMonday(s string, year, week int) (time.Time, error) {
	if week < 1 || week > 53 {
		return time.Time{}, &DecodeError{Serial: s, Reason: fmt.Sprintf("week %d out of range", week)}
	}
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	sinceMonday := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, (week-1)*7-sinceMonday)
	if y, w := monday.ISOWeek(); y != year || w != week {
		return time.Time{}, &DecodeError{Serial: s, Reason: fmt.Sprintf("%d has no ISO week %d", year, week)}
	}
	return monday, nil
}

// ProductCode returns the model snippet sent to the product lookup: the last
// four characters of a 12-character serial, otherwise the last three.
func ProductCode(s string) (string, error) {
	n := 3
	if len(s) == 12 {
		n = 4
	}
	if len(s) < n {
		return "", &DecodeError{Serial: s, Reason: fmt.Sprintf("too short for a model code (%d characters)", len(s))}
	}
	return s[len(s)-n:], nil
}
