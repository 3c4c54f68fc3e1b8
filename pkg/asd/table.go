// Package asd maps product descriptions to Apple Service Diagnostic versions.
package asd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Unknown is reported for descriptions missing from the table.
const Unknown = "unknown"

// Table maps a product description to an ASD version. It is read-only once
// parsed.
type Table map[string]string

// Parse reads newline separated "description:version" records. The first
// colon splits a record; lines without one are skipped.
func Parse(r io.Reader) (Table, error) {
	table := Table{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		desc, version, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		desc = strings.TrimSpace(desc)
		if desc == "" {
			continue
		}
		table[desc] = strings.TrimSpace(version)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read asd table: %w", err)
	}
	return table, nil
}

// Lookup returns the ASD version for an exact product description.
func (t Table) Lookup(desc string) string {
	if v, ok := t[strings.TrimSpace(desc)]; ok && v != "" {
		return v
	}
	return Unknown
}

// Fetch downloads and parses the table at url.
func Fetch(ctx context.Context, client *http.Client, url string) (Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asd table: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asd table: %s", resp.Status)
	}
	return Parse(resp.Body)
}
