package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"sotp_valuation/pkg/core/validate"
)

// Markdown renders the run as a Markdown report.
func Markdown(b *Bundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s (%s) Sum-of-the-Parts Valuation\n\n", b.Company, b.Ticker)
	fmt.Fprintf(&sb, "Fiscal year %d. Amounts in $ millions except per share.", b.FiscalYear)
	if !b.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, " Generated %s.", b.GeneratedAt.Format("2006-01-02 15:04 MST"))
	}
	sb.WriteString("\n\n")

	if len(b.Scenarios) > 0 {
		sb.WriteString("## Scenarios\n\n")
		sb.WriteString("| Scenario | Multiples | Cap Rate | OpCo | PropCo | Total EV | Equity | Per Share | Upside |\n")
		sb.WriteString("|---|---|---:|---:|---:|---:|---:|---:|---:|\n")
		for _, r := range b.Scenarios {
			mults := multiplesText(r.Params.Multiples)
			if r.Result == nil {
				fmt.Fprintf(&sb, "| %s | %s | %s | failed: %s | | | | | |\n", r.Scenario, mults, Pct(r.Params.CapRate), r.Error)
				continue
			}
			v := r.Result
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				r.Scenario, mults, Pct(r.Params.CapRate),
				Millions(v.OpCoValue), Millions(v.PropCoValue), Millions(v.TotalEV),
				Millions(v.EquityValue), Dollars(v.PerShare), Pct(v.Upside))
		}
		sb.WriteString("\n")
	}

	if len(b.Normalization) > 0 {
		sb.WriteString("## EBITDA Normalization\n\n")
		sb.WriteString("| Segment | Reported EBITDA | Actual Rent | Imputed Rent | OpCo EBITDA | PropCo NOI | Owned Beds |\n")
		sb.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
		for _, n := range b.Normalization {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
				n.SegmentName, Millions(n.ReportedEBITDA), Millions(n.ActualRent),
				Millions(n.ImputedRentOwned), Millions(n.OpCoEBITDA), Millions(n.PropCoNOI), Pct(n.OwnedPct()))
		}
		c := b.Consolidated
		fmt.Fprintf(&sb, "| **Total** | %s | %s | %s | %s | %s | |\n\n",
			Millions(c.ReportedEBITDA), Millions(c.ActualRent), Millions(c.ImputedRent),
			Millions(c.OpCoEBITDA), Millions(c.PropCoNOI))
	}

	if b.Reconciliation != nil {
		r := b.Reconciliation
		fmt.Fprintf(&sb, "Implied real estate value at a %s cap rate is %s against net PP&E of %s (%s).\n\n",
			Pct(r.CapRate), Millions(r.ImpliedValue), Millions(r.NetPPE), Pct(r.Difference))
	}

	if b.FootballField != nil {
		ff := b.FootballField
		sb.WriteString("## Football Field\n\n")
		sb.WriteString("| Method | Low | Base | High | Weight |\n")
		sb.WriteString("|---|---:|---:|---:|---:|\n")
		for _, m := range ff.Rows() {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				m.Label, Dollars(m.Low), Dollars(m.Base), Dollars(m.High), Pct(m.Weight))
		}
		fmt.Fprintf(&sb, "\nCurrent price %s; weighted base value implies %s upside.", Dollars(ff.CurrentPrice), Pct(ff.BaseUpside))
		if ff.OfferBand != nil {
			fmt.Fprintf(&sb, " Offer band %s to %s.", Dollars(ff.OfferBand.Low), Dollars(ff.OfferBand.High))
		}
		sb.WriteString("\n\n")
	}

	if b.DCF != nil {
		d := b.DCF
		sb.WriteString("## DCF\n\n")
		fmt.Fprintf(&sb, "- WACC %s, terminal growth %s\n", Pct(d.Assumptions.WACC), Pct(d.Assumptions.TerminalGrowth))
		if w := b.WACC; w != nil {
			fmt.Fprintf(&sb, "- CAPM: levered beta %.2f, cost of equity %s, after-tax cost of debt %s, %s debt weight\n",
				w.LeveredBeta, Pct(w.CostOfEquity), Pct(w.CostOfDebt), Pct(w.WeightDebt))
		}
		fmt.Fprintf(&sb, "- Enterprise value %s (terminal value %s of EV)\n", Millions(d.EnterpriseValue), Pct(d.TerminalShare))
		fmt.Fprintf(&sb, "- Per share %s, implied exit multiple %s\n\n", Dollars(d.PerShare), Multiple(d.ImpliedMultiple))
	}

	if b.LBO != nil {
		l := b.LBO
		sb.WriteString("## LBO\n\n")
		fmt.Fprintf(&sb, "- Entry EV %s at %s EBITDA, sponsor equity %s\n",
			Millions(l.Transaction.EntryEV), Multiple(l.Transaction.EntryMultiple), Millions(l.InitialEquity))
		fmt.Fprintf(&sb, "- Exit at %s: equity %s, MOIC %sx, IRR %s\n\n",
			Multiple(l.ExitMultiple), Millions(l.ExitEquity), Fixed(l.MOIC, 2), Pct(l.IRR))
	}

	if b.Dividend != nil {
		d := b.Dividend
		sb.WriteString("## PropCo Dividend Feasibility\n\n")
		fmt.Fprintf(&sb, "PropCo NOI %s capitalized at %s is worth %s. %d of %d LTV / rate combinations clear a %s target yield with adequate coverage.\n\n",
			Millions(d.NOI), Pct(d.CapRate), Millions(d.PropCoValue), len(d.Viable()), len(d.Scenarios), Pct(d.TargetYield))
	}

	if b.Validation != nil {
		v := b.Validation
		sb.WriteString("## Integrity Checks\n\n")
		fmt.Fprintf(&sb, "%d passed, %d failed, %d warnings (pass rate %.1f%%).\n\n", v.Passed, v.Failed, v.Warnings, v.PassRate())
		for _, c := range v.Checks {
			if c.Status == validate.Pass {
				continue
			}
			fmt.Fprintf(&sb, "- **%s** %s: %s\n", c.Status, c.Name, c.Message)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func multiplesText(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %s", k, Multiple(m[k]))
	}
	return strings.Join(parts, ", ")
}

const htmlPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.6em; }
</style>
</head>
<body>
%s</body>
</html>
`

// RenderHTML converts Markdown to a standalone HTML page.
func RenderHTML(title, md string) ([]byte, error) {
	var body bytes.Buffer
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := gm.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return []byte(fmt.Sprintf(htmlPage, html.EscapeString(title), body.String())), nil
}

func WriteHTML(w io.Writer, b *Bundle) error {
	page, err := RenderHTML(fmt.Sprintf("%s SOTP Valuation", b.Ticker), Markdown(b))
	if err != nil {
		return err
	}
	_, err = w.Write(page)
	return err
}
