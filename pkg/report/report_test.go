package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/nmasdoufi/warranty/pkg/inventory"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPrintFullRecord(t *testing.T) {
	rec := inventory.NewWarrantyRecord(inventory.RecordInput{
		Serial:       "C02HK0ABDV13",
		Description:  "MacBook Pro (13-inch, Mid 2012)",
		WarrantyType: "AppleCare Protection Plan",
		PurchaseDate: day(2012, time.May, 3),
		Coverage:     inventory.ActiveUntil(*day(2015, time.May, 3)),
		ASDVersion:   "3S150",
	})
	var buf bytes.Buffer
	if err := Print(&buf, rec); err != nil {
		t.Fatalf("Print: %v", err)
	}
	want := `
Serial Number:          C02HK0ABDV13
Product Description:    MacBook Pro (13-inch, Mid 2012)
Warranty Type:          AppleCare Protection Plan
Purchase Date:          2012-05-03
Coverage End:           2015-05-03
ASD Version:            3S150
`
	if got := buf.String(); got != want {
		t.Fatalf("Print output mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestPrintExpiredWithEstimate(t *testing.T) {
	rec := inventory.NewWarrantyRecord(inventory.RecordInput{
		Serial:       "C02HK0ABDV13",
		Description:  "Widget",
		Coverage:     inventory.Coverage{Status: inventory.CoverageExpired},
		Manufactured: day(2012, time.April, 16),
	})
	var buf bytes.Buffer
	if err := Print(&buf, rec); err != nil {
		t.Fatalf("Print: %v", err)
	}
	want := `
Serial Number:          C02HK0ABDV13
Product Description:    Widget
Coverage End:           EXPIRED
Estimated Manufacture:  2012-04-16
ASD Version:            unknown
`
	if got := buf.String(); got != want {
		t.Fatalf("Print output mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestFailure(t *testing.T) {
	var buf bytes.Buffer
	if err := Failure(&buf, "BOGUS", errors.New("parse product response: missing <configCode>")); err != nil {
		t.Fatalf("Failure: %v", err)
	}
	want := "\nBOGUS: parse product response: missing <configCode>. Please check serial number and try again.\n"
	if got := buf.String(); got != want {
		t.Fatalf("Failure()=%q want %q", got, want)
	}
}
