package npi

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"sotp_valuation/pkg/models"
)

// CCNDirectory maps facility names to CMS Certification Numbers.
type CCNDirectory map[string]string

func ccnKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (d CCNDirectory) Lookup(name string) (string, bool) {
	ccn, ok := d[ccnKey(name)]
	return ccn, ok
}

// LoadCCNDirectory reads a two-column name,CCN CSV with a header row.
func LoadCCNDirectory(path string) (CCNDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CCN directory: %w", err)
	}
	defer f.Close()
	return ReadCCNDirectory(f)
}

func ReadCCNDirectory(r io.Reader) (CCNDirectory, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CCN directory: %w", err)
	}
	dir := CCNDirectory{}
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		name, ccn := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if name != "" && ccn != "" {
			dir[ccnKey(name)] = ccn
		}
	}
	return dir, nil
}

// Batch looks up every facility in order. A failed lookup yields a NotFound
// row and the batch moves on; only context cancellation stops it early, in
// which case the rows gathered so far are returned with the context error.
func (c *Client) Batch(ctx context.Context, facilities []models.Facility, ccn CCNDirectory) ([]Match, error) {
	out := make([]Match, 0, len(facilities))
	found := 0
	for i, f := range facilities {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m := c.Lookup(ctx, f)
		if id, ok := ccn.Lookup(f.Name); ok {
			m.CCN = id
		}
		if m.Found() {
			found++
		}
		log.Printf("[NPI] %d/%d %s: %s", i+1, len(facilities), f.Name, m.NPI)
		out = append(out, m)
	}
	log.Printf("[NPI] matched %d of %d facilities", found, len(facilities))
	return out, nil
}

var csvHeader = []string{
	"Facility", "City", "State", "Country", "NPI", "DBA", "Primary Taxonomy",
	"Phone", "Address", "CCN", "Notes", "Candidate NPI Count",
}

// WriteCSV writes the enriched roster.
func WriteCSV(w io.Writer, matches []Match) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, m := range matches {
		rec := []string{
			m.Facility.Name, m.Facility.City, m.Facility.State, m.Facility.Country,
			m.NPI, m.DBA, m.Taxonomy, m.Phone, m.Address, m.CCN, m.Notes,
			strconv.Itoa(m.Candidates),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
