package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"sotp_valuation/pkg/core/valuation"
)

func writeRows(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteScenarios writes one row per scenario. Failed scenarios keep their
// parameters and carry the error text.
func WriteScenarios(w io.Writer, rows []valuation.ScenarioRow) error {
	header := []string{
		"Scenario", "Cap Rate", "OpCo Value", "PropCo Value", "Total EV",
		"Net Debt", "Equity Value", "Per Share", "Current Price", "Upside", "Error",
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		rec := []string{r.Scenario, Fixed(r.Params.CapRate, 4)}
		if r.Result == nil {
			rec = append(rec, "", "", "", "", "", "", "", "", r.Error)
		} else {
			v := r.Result
			rec = append(rec,
				Fixed(v.OpCoValue, 1), Fixed(v.PropCoValue, 1), Fixed(v.TotalEV, 1),
				Fixed(v.NetDebt, 1), Fixed(v.EquityValue, 1), Fixed(v.PerShare, 2),
				Fixed(v.CurrentPrice, 2), Fixed(v.Upside, 4), "",
			)
		}
		out = append(out, rec)
	}
	return writeRows(w, header, out)
}

// WriteComponents writes the segment x OpCo/PropCo breakdown of every
// successful scenario.
func WriteComponents(w io.Writer, rows []valuation.ScenarioRow) error {
	header := []string{"Scenario", "Segment", "Component", "Metric", "Rate", "Value"}
	var out [][]string
	for _, r := range rows {
		if r.Result == nil {
			continue
		}
		for _, c := range r.Result.Components {
			out = append(out, []string{
				r.Scenario, c.Segment, string(c.Kind),
				Fixed(c.Metric, 2), Fixed(c.Rate, 4), Fixed(c.Value, 1),
			})
		}
	}
	return writeRows(w, header, out)
}

func WriteNormalization(w io.Writer, norms []valuation.RentNormalization) error {
	header := []string{
		"Segment", "Revenue", "Reported EBITDA", "EBITDA Margin", "Actual Rent",
		"Owned Beds", "Leased Beds", "EBITDAR", "Rent per Leased Bed",
		"Imputed Rent (Owned)", "Total Rent", "OpCo EBITDA", "PropCo NOI",
	}
	out := make([][]string, 0, len(norms)+1)
	for _, n := range norms {
		out = append(out, []string{
			n.SegmentName, Fixed(n.Revenue, 1), Fixed(n.ReportedEBITDA, 1), Fixed(n.EBITDAMargin, 4),
			Fixed(n.ActualRent, 1), strconv.Itoa(n.OwnedBeds), strconv.Itoa(n.LeasedBeds),
			Fixed(n.EBITDAR, 1), Fixed(n.RentPerLeasedBed, 6), Fixed(n.ImputedRentOwned, 1),
			Fixed(n.TotalRent, 1), Fixed(n.OpCoEBITDA, 1), Fixed(n.PropCoNOI, 1),
		})
	}
	c := valuation.Consolidate(norms)
	out = append(out, []string{
		"Total", Fixed(c.Revenue, 1), Fixed(c.ReportedEBITDA, 1), "",
		Fixed(c.ActualRent, 1), "", "", Fixed(c.EBITDAR, 1), "", "",
		Fixed(c.TotalRent, 1), Fixed(c.OpCoEBITDA, 1), Fixed(c.PropCoNOI, 1),
	})
	return writeRows(w, header, out)
}

// WriteSensitivity writes a grid with row values down the first column.
func WriteSensitivity(w io.Writer, t valuation.SensitivityTable) error {
	header := []string{t.RowLabel + " \\ " + t.ColLabel}
	for _, c := range t.Cols {
		header = append(header, strconv.FormatFloat(c, 'f', -1, 64))
	}
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rec := []string{strconv.FormatFloat(r, 'f', -1, 64)}
		for _, v := range t.Values[i] {
			rec = append(rec, Fixed(v, 2))
		}
		out[i] = rec
	}
	return writeRows(w, header, out)
}

func WriteDCF(w io.Writer, r valuation.DCFResult) error {
	header := []string{
		"Year", "Revenue", "Growth", "EBITDA", "EBITDA Margin", "D&A", "EBIT", "Taxes",
		"NOPAT", "Capex", "NWC Change", "FCF", "Discount Factor", "PV FCF",
	}
	out := make([][]string, 0, len(r.Projections))
	for _, p := range r.Projections {
		out = append(out, []string{
			strconv.Itoa(p.Year), Fixed(p.Revenue, 1), Fixed(p.Growth, 4), Fixed(p.EBITDA, 1),
			Fixed(p.EBITDAMargin, 4), Fixed(p.Depreciation, 1), Fixed(p.EBIT, 1), Fixed(p.Taxes, 1),
			Fixed(p.NOPAT, 1), Fixed(p.Capex, 1), Fixed(p.NWCChange, 1), Fixed(p.FCF, 1),
			Fixed(p.DiscountFactor, 6), Fixed(p.PVFCF, 1),
		})
	}
	return writeRows(w, header, out)
}

func WriteLBOGrid(w io.Writer, cells []valuation.LBOGridCell) error {
	header := []string{
		"Entry Price", "Entry Multiple", "Exit Multiple", "Initial Equity",
		"Exit Equity", "MOIC", "IRR", "Error",
	}
	out := make([][]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, []string{
			Fixed(c.EntryPrice, 2), Fixed(c.EntryMultiple, 2), Fixed(c.ExitMultiple, 2),
			Fixed(c.InitialEquity, 1), Fixed(c.ExitEquity, 1), Fixed(c.MOIC, 3),
			Fixed(c.IRR, 4), c.Error,
		})
	}
	return writeRows(w, header, out)
}

func WriteDividend(w io.Writer, a valuation.DividendAnalysis) error {
	header := []string{
		"LTV", "Interest Rate", "Debt Constant", "Equity Yield", "Debt", "Equity",
		"Debt Service", "Cash to Equity", "DSCR", "Meets Target", "Viable",
	}
	out := make([][]string, 0, len(a.Scenarios))
	for _, s := range a.Scenarios {
		out = append(out, []string{
			Fixed(s.LTV, 2), Fixed(s.InterestRate, 4), Fixed(s.DebtConstant, 4),
			Fixed(s.EquityYield, 4), Fixed(s.Debt, 1), Fixed(s.Equity, 1),
			Fixed(s.DebtService, 1), Fixed(s.CashToEquity, 1), Fixed(s.DSCR, 2),
			strconv.FormatBool(s.MeetsTarget), strconv.FormatBool(s.Viable),
		})
	}
	return writeRows(w, header, out)
}

func WriteFootballField(w io.Writer, f valuation.FootballField) error {
	header := []string{"Method", "Low", "Base", "High", "Weight"}
	rows := f.Rows()
	out := make([][]string, 0, len(rows))
	for _, m := range rows {
		out = append(out, []string{
			m.Label, Fixed(m.Low, 2), Fixed(m.Base, 2), Fixed(m.High, 2), Fixed(m.Weight, 2),
		})
	}
	return writeRows(w, header, out)
}

// writeFile creates dir/name and hands it to fn.
func writeFile(dir, name string, fn func(io.Writer) error) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
