package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"sotp_valuation/pkg/core/validate"
	"sotp_valuation/pkg/core/valuation"
)

// Bundle is everything one run produced. Nil or empty parts are skipped by
// the writers.
type Bundle struct {
	Company     string    `json:"company"`
	Ticker      string    `json:"ticker"`
	FiscalYear  int       `json:"fiscal_year"`
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	Normalization  []valuation.RentNormalization       `json:"normalization"`
	Consolidated   valuation.ConsolidatedNormalization `json:"consolidated"`
	Scenarios      []valuation.ScenarioRow             `json:"scenarios"`
	Sensitivity    []valuation.SensitivityTable        `json:"-"`
	Allocation     *valuation.RealEstateAllocation     `json:"real_estate_allocation,omitempty"`
	Reconciliation *valuation.Reconciliation           `json:"real_estate_reconciliation,omitempty"`
	Dividend       *valuation.DividendAnalysis         `json:"dividend,omitempty"`
	WACC           *valuation.WACCResult               `json:"wacc,omitempty"`
	DCF            *valuation.DCFResult                `json:"dcf,omitempty"`
	LBO            *valuation.LBOReturns               `json:"lbo,omitempty"`
	LBOGrid        []valuation.LBOGridCell             `json:"-"`
	FootballField  *valuation.FootballField            `json:"football_field,omitempty"`
	Validation     *validate.Report                    `json:"validation,omitempty"`
}

// SensitivityView is a SensitivityTable with failed cells as JSON null.
type SensitivityView struct {
	Scenario string       `json:"scenario"`
	RowLabel string       `json:"row_label"`
	ColLabel string       `json:"col_label"`
	Rows     []float64    `json:"rows"`
	Cols     []float64    `json:"cols"`
	Values   [][]*float64 `json:"values"`
}

func NewSensitivityView(t valuation.SensitivityTable) SensitivityView {
	v := SensitivityView{
		Scenario: t.Scenario,
		RowLabel: t.RowLabel,
		ColLabel: t.ColLabel,
		Rows:     t.Rows,
		Cols:     t.Cols,
		Values:   make([][]*float64, len(t.Values)),
	}
	for i, row := range t.Values {
		v.Values[i] = make([]*float64, len(row))
		for j, x := range row {
			if !math.IsNaN(x) && !math.IsInf(x, 0) {
				x := x
				v.Values[i][j] = &x
			}
		}
	}
	return v
}

type bundleJSON Bundle

func (b Bundle) MarshalJSON() ([]byte, error) {
	views := make([]SensitivityView, len(b.Sensitivity))
	for i, t := range b.Sensitivity {
		views[i] = NewSensitivityView(t)
	}
	return json.Marshal(struct {
		bundleJSON
		Sensitivity []SensitivityView `json:"sensitivity,omitempty"`
	}{bundleJSON(b), views})
}

// WriteJSON writes the indented JSON summary.
func WriteJSON(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// BaseResult returns the named scenario's result, if it succeeded.
func (b *Bundle) BaseResult(name string) *valuation.ValuationResult {
	for _, r := range b.Scenarios {
		if r.Scenario == name {
			return r.Result
		}
	}
	return nil
}

// WriteAll writes every available part of the bundle into dir and returns
// the paths written.
func WriteAll(dir string, b *Bundle) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	type part struct {
		name string
		ok   bool
		fn   func(io.Writer) error
	}
	parts := []part{
		{"sotp_scenarios.csv", len(b.Scenarios) > 0, func(w io.Writer) error { return WriteScenarios(w, b.Scenarios) }},
		{"sotp_components.csv", len(b.Scenarios) > 0, func(w io.Writer) error { return WriteComponents(w, b.Scenarios) }},
		{"ebitda_normalization.csv", len(b.Normalization) > 0, func(w io.Writer) error { return WriteNormalization(w, b.Normalization) }},
		{"lbo_grid.csv", len(b.LBOGrid) > 0, func(w io.Writer) error { return WriteLBOGrid(w, b.LBOGrid) }},
		{"summary.json", true, func(w io.Writer) error { return WriteJSON(w, b) }},
		{"report.md", true, func(w io.Writer) error { _, err := io.WriteString(w, Markdown(b)); return err }},
		{"report.html", true, func(w io.Writer) error { return WriteHTML(w, b) }},
	}
	for i := range b.Sensitivity {
		t := b.Sensitivity[i]
		parts = append(parts, part{fmt.Sprintf("sensitivity_%d.csv", i+1), true, func(w io.Writer) error { return WriteSensitivity(w, t) }})
	}
	if b.DCF != nil {
		parts = append(parts, part{"dcf_projections.csv", true, func(w io.Writer) error { return WriteDCF(w, *b.DCF) }})
	}
	if b.Dividend != nil {
		parts = append(parts, part{"dividend_scenarios.csv", true, func(w io.Writer) error { return WriteDividend(w, *b.Dividend) }})
	}
	if b.FootballField != nil {
		parts = append(parts, part{"football_field.csv", true, func(w io.Writer) error { return WriteFootballField(w, *b.FootballField) }})
	}

	var written []string
	for _, p := range parts {
		if !p.ok {
			continue
		}
		path, err := writeFile(dir, p.name, p.fn)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
