package inventory

import "time"

// DateLayout is how every date in a report is rendered.
const DateLayout = "2006-01-02"

// CoverageStatus distinguishes "no coverage" from "data unavailable".
type CoverageStatus int

const (
	// CoverageUnknown means the lookup said nothing about coverage.
	CoverageUnknown CoverageStatus = iota
	// CoverageActive means the device is covered; Expires may still be unset.
	CoverageActive
	// CoverageExpired means the lookup reported no remaining coverage.
	CoverageExpired
)

// Coverage is either a parsed expiration date or one of the sentinels above.
// It never carries raw upstream text.
type Coverage struct {
	Status  CoverageStatus
	Expires *time.Time
}

// ActiveUntil returns coverage ending on the given date.
func ActiveUntil(t time.Time) Coverage {
	return Coverage{Status: CoverageActive, Expires: &t}
}

// HasExpiration reports whether an explicit expiration date is known.
func (c Coverage) HasExpiration() bool {
	return c.Expires != nil
}

// String renders the coverage for a report.
func (c Coverage) String() string {
	switch {
	case c.Expires != nil:
		return c.Expires.Format(DateLayout)
	case c.Status == CoverageExpired:
		return "EXPIRED"
	case c.Status == CoverageActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// WarrantyRecord is everything learned about one serial in one run.
type WarrantyRecord struct {
	Serial       string
	Description  string
	WarrantyType string
	PurchaseDate *time.Time
	Coverage     Coverage
	// Manufactured is only estimated when Coverage has no explicit date.
	Manufactured *time.Time
	ASDVersion   string
}
