package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sotp_valuation/pkg/core/pipeline"
	"sotp_valuation/pkg/core/report"
	"sotp_valuation/pkg/core/valuation"
)

var sensitivityCmd = &cobra.Command{
	Use:   "sensitivity",
	Short: "Per-share value across multiple and cap rate grids",
	Long: `Without --row/--col prints the three standard tables (behavioral
multiple x cap rate, acute multiple x cap rate, behavioral x acute multiple).
--row and --col take a segment key or "cap_rate".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		in, _, err := prepare(ctx)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		name, _ := flags.GetString("scenario")
		base, err := in.Scenarios.Get(name)
		if err != nil {
			return err
		}

		var tables []valuation.SensitivityTable
		rowKey, _ := flags.GetString("row")
		colKey, _ := flags.GetString("col")
		if rowKey != "" || colKey != "" {
			row, err := axisFor(base, rowKey)
			if err != nil {
				return err
			}
			col, err := axisFor(base, colKey)
			if err != nil {
				return err
			}
			t, err := valuation.TwoWayTable(in.Norms, base, in.Market, row, col)
			if err != nil {
				return err
			}
			tables = append(tables, t)
		} else {
			tables, err = valuation.StandardTables(in.Norms, base, in.Market)
			if err != nil {
				return err
			}
		}

		out, _ := flags.GetString("out")
		for i, t := range tables {
			printTable(t)
			fmt.Println()
			if out != "" {
				path := filepath.Join(out, fmt.Sprintf("sensitivity_%d.csv", i+1))
				if err := writeCSV(path, func(f *os.File) error { return report.WriteSensitivity(f, t) }); err != nil {
					return err
				}
				fmt.Println("  wrote", path)
			}
		}
		return nil
	},
}

// axisFor builds a default-width axis: cap rates 5.0%-8.0%, or the scenario
// multiple +/- 2.0x in 0.5x steps.
func axisFor(base valuation.ScenarioParameters, key string) (valuation.Axis, error) {
	if key == "" || key == "cap_rate" {
		return valuation.CapRateAxis(valuation.Range(0.050, 0.085, 0.005)...), nil
	}
	m, ok := base.Multiple(key)
	if !ok {
		return valuation.Axis{}, fmt.Errorf("%s: %w", key, valuation.ErrUnknownSegment)
	}
	lo := m - 2
	if lo < 0.5 {
		lo = 0.5
	}
	return valuation.MultipleAxis(key, valuation.Range(lo, m+2.5, 0.5)...), nil
}

func printTable(t valuation.SensitivityTable) {
	fmt.Printf("%s (rows) x %s (cols), scenario %s\n", t.RowLabel, t.ColLabel, t.Scenario)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprint(w, "\t")
	for _, c := range t.Cols {
		fmt.Fprintf(w, "%s\t", report.Fixed(c, 3))
	}
	fmt.Fprintln(w)
	for i, r := range t.Rows {
		fmt.Fprintf(w, "%s\t", report.Fixed(r, 3))
		for _, v := range t.Values[i] {
			fmt.Fprintf(w, "%s\t", report.Fixed(v, 0))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

var dcfCmd = &cobra.Command{
	Use:   "dcf",
	Short: "10-year unlevered DCF with WACC x terminal growth sensitivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		in, opts, err := prepare(ctx)
		if err != nil {
			return err
		}
		if !in.HasConsolidated() {
			return fmt.Errorf("filing has no consolidated financials: %w", valuation.ErrInvalidInput)
		}

		flags := cmd.Flags()
		a := valuation.DefaultDCFAssumptions()
		if opts.CAPMWACC {
			capm, err := valuation.CalculateWACC(valuation.DefaultWACCInput(in.Market))
			if err != nil {
				return err
			}
			a.WACC = capm.WACC
			fmt.Printf("CAPM: levered beta %.2f, cost of equity %s, after-tax debt %s, weights %s / %s\n\n",
				capm.LeveredBeta, report.Pct(capm.CostOfEquity), report.Pct(capm.CostOfDebt),
				report.Pct(capm.WeightEquity), report.Pct(capm.WeightDebt))
		}
		if w, _ := flags.GetFloat64("wacc"); w > 0 {
			a.WACC = w
		}
		if g, _ := flags.GetFloat64("terminal-growth"); g > 0 {
			a.TerminalGrowth = g
		}
		dcfIn := valuation.DCFInput{Base: in.Filing.Consolidated, Assumptions: a, Market: in.Market}
		r, err := valuation.CalculateDCF(dcfIn)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "Year\tRevenue\tGrowth\tEBITDA\tMargin\tFCF\tPV FCF\t")
		for _, p := range r.Projections {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n", p.Year,
				report.Millions(p.Revenue), report.Pct(p.Growth), report.Millions(p.EBITDA),
				report.Pct(p.EBITDAMargin), report.Millions(p.FCF), report.Millions(p.PVFCF))
		}
		w.Flush()
		fmt.Printf("\nWACC %s, terminal growth %s\n", report.Pct(a.WACC), report.Pct(a.TerminalGrowth))
		fmt.Printf("EV %s (terminal %s of EV, %s implied exit)\n",
			report.Millions(r.EnterpriseValue), report.Pct(r.TerminalShare), report.Multiple(r.ImpliedMultiple))
		fmt.Printf("Equity %s, %s per share (%s vs %s)\n\n",
			report.Millions(r.EquityValue), report.Dollars(r.PerShare), report.Pct(r.Upside), report.Dollars(in.Market.SharePrice))

		waccs, growths := valuation.DefaultDCFSensitivityAxes()
		t, err := valuation.DCFSensitivity(dcfIn, waccs, growths)
		if err != nil {
			return err
		}
		printTable(t)

		if out, _ := flags.GetString("out"); out != "" {
			path := filepath.Join(out, "dcf_projections.csv")
			if err := writeCSV(path, func(f *os.File) error { return report.WriteDCF(f, r) }); err != nil {
				return err
			}
			fmt.Println("  wrote", path)
		}
		return nil
	},
}

var lboCmd = &cobra.Command{
	Use:   "lbo",
	Short: "Leveraged buyout returns, entry x exit grid and reverse LBO",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		in, _, err := prepare(ctx)
		if err != nil {
			return err
		}
		if !in.HasConsolidated() {
			return fmt.Errorf("filing has no consolidated financials: %w", valuation.ErrInvalidInput)
		}

		flags := cmd.Flags()
		entry, _ := flags.GetFloat64("entry-price")
		exit, _ := flags.GetFloat64("exit-multiple")
		lboIn := valuation.LBOInput{
			Base:         in.Filing.Consolidated,
			Market:       in.Market,
			EntryPrice:   entry,
			ExitMultiple: exit,
			Assumptions:  valuation.DefaultLBOAssumptions(),
		}
		r, err := valuation.CalculateLBO(lboIn)
		if err != nil {
			return err
		}
		printLBO(r)

		if target, _ := flags.GetFloat64("target-irr"); target > 0 {
			rev, err := valuation.ReverseLBO(lboIn, target, 50, 1000)
			if err != nil {
				return err
			}
			fmt.Printf("\nMax entry price for %s IRR at %s exit: %s per share (%s EV/EBITDA)\n",
				report.Pct(target), report.Multiple(exit),
				report.Dollars(rev.Transaction.EquityPurchase/in.Market.SharesOutstanding),
				report.Multiple(rev.Transaction.EntryMultiple))
		}

		entries, exits := valuation.DefaultLBOGridAxes()
		cells := valuation.LBOGrid(lboIn, entries, exits)
		fmt.Println("\nIRR by entry price (rows) and exit multiple (cols)")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
		fmt.Fprint(w, "\t")
		for _, x := range exits {
			fmt.Fprintf(w, "%s\t", report.Multiple(x))
		}
		fmt.Fprintln(w)
		for i, e := range entries {
			fmt.Fprintf(w, "%s\t", report.Dollars(e))
			for j := range exits {
				fmt.Fprintf(w, "%s\t", report.Pct(cells[i*len(exits)+j].IRR))
			}
			fmt.Fprintln(w)
		}
		w.Flush()

		if out, _ := flags.GetString("out"); out != "" {
			path := filepath.Join(out, "lbo_grid.csv")
			if err := writeCSV(path, func(f *os.File) error { return report.WriteLBOGrid(f, cells) }); err != nil {
				return err
			}
			fmt.Println("  wrote", path)
		}
		return nil
	},
}

func printLBO(r valuation.LBOReturns) {
	tx := r.Transaction
	fmt.Printf("Entry EV %s (%s EBITDA), new debt %s (%s of uses, %s leverage), sponsor equity %s\n",
		report.Millions(tx.EntryEV), report.Multiple(tx.EntryMultiple), report.Millions(tx.NewDebt),
		report.Pct(tx.DebtPct), report.Multiple(tx.EntryLeverage), report.Millions(tx.SponsorEquity))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Year\tRevenue\tEBITDA\tMargin\tFCF\tPaydown\tDebt\t")
	for _, y := range r.Projections {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n", y.Year,
			report.Millions(y.Revenue), report.Millions(y.EBITDA), report.Pct(y.EBITDAMargin),
			report.Millions(y.FCF), report.Millions(y.DebtPaydown), report.Millions(y.DebtBalance))
	}
	w.Flush()
	fmt.Printf("Exit EV %s at %s, exit equity %s; MOIC %.2fx, IRR %s\n",
		report.Millions(r.ExitEV), report.Multiple(r.ExitMultiple), report.Millions(r.ExitEquity), r.MOIC, report.Pct(r.IRR))
}

var dividendCmd = &cobra.Command{
	Use:   "dividend",
	Short: "PropCo dividend capacity across LTV and interest rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		in, _, err := prepare(ctx)
		if err != nil {
			return err
		}
		divIn := valuation.DefaultDividendInput(valuation.Consolidate(in.Norms).PropCoNOI)
		divIn.CapRate = in.BaseScenario().CapRate()
		if c, _ := cmd.Flags().GetFloat64("cap-rate"); c > 0 {
			divIn.CapRate = c
		}
		a, err := valuation.AnalyzeDividend(divIn)
		if err != nil {
			return err
		}

		fmt.Printf("PropCo NOI %s at %s cap rate: value %s, target yield %s\n",
			report.Millions(a.NOI), report.Pct(a.CapRate), report.Millions(a.PropCoValue), report.Pct(a.TargetYield))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "LTV\tRate\tEquity yield\tDSCR\tCash to equity\tViable\t")
		for _, s := range a.Scenarios {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2fx\t%s\t%v\t\n", report.Pct(s.LTV), report.Pct(s.InterestRate),
				report.Pct(s.EquityYield), s.DSCR, report.Millions(s.CashToEquity), s.Viable)
		}
		w.Flush()
		fmt.Printf("%d of %d structures viable\n", len(a.Viable()), len(a.Scenarios))
		return nil
	},
}

var footballCmd = &cobra.Command{
	Use:   "football",
	Short: "Per-share ranges from every method and the weighted blend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		in, opts, err := prepare(ctx)
		if err != nil {
			return err
		}
		ff, err := footballField(in, opts)
		if err != nil {
			return err
		}
		printFootballField(ff)

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			path := filepath.Join(out, "football_field.csv")
			if err := writeCSV(path, func(f *os.File) error { return report.WriteFootballField(f, ff) }); err != nil {
				return err
			}
			fmt.Println("  wrote", path)
		}
		return nil
	},
}

// footballField runs the same suite as value, peers and CAPM WACC included.
func footballField(in *pipeline.Inputs, opts pipeline.Options) (valuation.FootballField, error) {
	if !in.HasConsolidated() {
		return valuation.FootballField{}, fmt.Errorf("filing has no consolidated financials: %w", valuation.ErrInvalidInput)
	}
	b, err := newOrchestrator().Value(in, opts)
	if err != nil {
		return valuation.FootballField{}, err
	}
	return *b.FootballField, nil
}

func writeCSV(path string, fn func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	sensitivityCmd.Flags().String("scenario", "base", "scenario the grid is centered on")
	sensitivityCmd.Flags().String("row", "", "row axis: segment key or cap_rate")
	sensitivityCmd.Flags().String("col", "", "column axis: segment key or cap_rate")
	sensitivityCmd.Flags().String("out", "", "write sensitivity_N.csv files to this directory")

	dcfCmd.Flags().Float64("wacc", 0, "discount rate (default 8.5%)")
	dcfCmd.Flags().Float64("terminal-growth", 0, "perpetuity growth (default 2.5%)")
	dcfCmd.Flags().String("out", "", "write dcf_projections.csv to this directory")

	lboCmd.Flags().Float64("entry-price", 355, "entry price per share")
	lboCmd.Flags().Float64("exit-multiple", 9.0, "exit EV / EBITDA")
	lboCmd.Flags().Float64("target-irr", 0, "solve for the max entry price at this IRR (e.g. 0.20)")
	lboCmd.Flags().String("out", "", "write lbo_grid.csv to this directory")

	dividendCmd.Flags().Float64("cap-rate", 0, "PropCo cap rate (default: base scenario)")

	footballCmd.Flags().String("out", "", "write football_field.csv to this directory")
}
