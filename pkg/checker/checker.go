// Package checker runs the per-serial lookup pipeline over a batch of serials.
package checker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nmasdoufi/warranty/pkg/apple"
	"github.com/nmasdoufi/warranty/pkg/asd"
	"github.com/nmasdoufi/warranty/pkg/inventory"
	"github.com/nmasdoufi/warranty/pkg/logging"
	"github.com/nmasdoufi/warranty/pkg/report"
	"github.com/nmasdoufi/warranty/pkg/serial"
)

// Lookup is the remote side of a check.
type Lookup interface {
	ProductDescription(ctx context.Context, serial string) (string, error)
	Warranty(ctx context.Context, serial string) (apple.Warranty, error)
}

// TableSource loads the ASD version table.
type TableSource func(ctx context.Context) (asd.Table, error)

// Handler receives every successfully assembled record.
type Handler func(ctx context.Context, rec inventory.WarrantyRecord)

// BatchError reports how many serials in a run failed.
type BatchError struct {
	Failed int
	Total  int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d serials failed", e.Failed, e.Total)
}

// Checker assembles warranty records one serial at a time.
type Checker struct {
	lookup Lookup
	tables TableSource
	logger *logging.Logger
}

// New creates a checker. tables may be nil, in which case every ASD version
// is reported as unknown.
func New(lookup Lookup, tables TableSource, logger *logging.Logger) *Checker {
	return &Checker{lookup: lookup, tables: tables, logger: logger}
}

// Run checks serials in order, printing a report or a failure notice for each
// to out. A failing serial never stops the batch. The ASD table is loaded once.
func (c *Checker) Run(ctx context.Context, serials []string, out io.Writer, handlers ...Handler) error {
	table := c.loadTable(ctx)
	failed := 0
	for _, raw := range serials {
		if err := ctx.Err(); err != nil {
			return err
		}
		sn := inventory.NormalizeSerial(raw)
		rec, err := c.Check(ctx, sn, table)
		if err != nil {
			failed++
			c.logger.Errorf("%s: %v", sn, err)
			if werr := report.Failure(out, sn, err); werr != nil {
				return werr
			}
			continue
		}
		if err := report.Print(out, rec); err != nil {
			return err
		}
		for _, h := range handlers {
			h(ctx, rec)
		}
	}
	if failed > 0 {
		return &BatchError{Failed: failed, Total: len(serials)}
	}
	return nil
}

// Check runs product lookup, warranty lookup, the manufacture estimate (only
// without an explicit expiration) and the ASD lookup for one serial.
func (c *Checker) Check(ctx context.Context, sn string, table asd.Table) (inventory.WarrantyRecord, error) {
	c.logger.Debugf("%s: product lookup", sn)
	desc, err := c.lookup.ProductDescription(ctx, sn)
	if err != nil {
		return inventory.WarrantyRecord{}, fmt.Errorf("product lookup: %w", err)
	}
	c.logger.Debugf("%s: warranty lookup", sn)
	w, err := c.lookup.Warranty(ctx, sn)
	if err != nil {
		return inventory.WarrantyRecord{}, fmt.Errorf("warranty lookup: %w", err)
	}
	if desc == "" {
		desc = w.Description
	}

	var made *time.Time
	if !w.Coverage.HasExpiration() {
		t, ok, err := serial.Estimate(sn)
		switch {
		case err != nil:
			c.logger.Debugf("%s: no manufacture estimate: %v", sn, err)
		case ok:
			made = &t
		}
	}

	return inventory.NewWarrantyRecord(inventory.RecordInput{
		Serial:       sn,
		Description:  desc,
		WarrantyType: w.WarrantyType,
		PurchaseDate: w.PurchaseDate,
		Coverage:     w.Coverage,
		Manufactured: made,
		ASDVersion:   table.Lookup(desc),
	}), nil
}

func (c *Checker) loadTable(ctx context.Context) asd.Table {
	if c.tables == nil {
		return nil
	}
	table, err := c.tables(ctx)
	if err != nil {
		c.logger.Warnf("ASD table unavailable, versions will be reported as %s: %v", asd.Unknown, err)
		return nil
	}
	c.logger.Debugf("loaded %d ASD table entries", len(table))
	return table
}
