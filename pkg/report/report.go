// Package report renders warranty records as fixed-layout text blocks.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nmasdoufi/warranty/pkg/inventory"
)

const labelWidth = 24

// Print writes one block for rec. Optional fields are omitted when unknown.
func Print(w io.Writer, rec inventory.WarrantyRecord) error {
	var b strings.Builder
	b.WriteString("\n")
	line(&b, "Serial Number:", rec.Serial)
	line(&b, "Product Description:", rec.Description)
	if rec.WarrantyType != "" {
		line(&b, "Warranty Type:", rec.WarrantyType)
	}
	if rec.PurchaseDate != nil {
		line(&b, "Purchase Date:", rec.PurchaseDate.Format(inventory.DateLayout))
	}
	line(&b, "Coverage End:", rec.Coverage.String())
	if !rec.Coverage.HasExpiration() && rec.Manufactured != nil {
		line(&b, "Estimated Manufacture:", rec.Manufactured.Format(inventory.DateLayout))
	}
	line(&b, "ASD Version:", rec.ASDVersion)
	_, err := io.WriteString(w, b.String())
	return err
}

// Failure writes the per-serial error notice.
func Failure(w io.Writer, serial string, err error) error {
	_, werr := fmt.Fprintf(w, "\n%s: %v. Please check serial number and try again.\n", serial, err)
	return werr
}

func line(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%-*s%s\n", labelWidth, label, value)
}
