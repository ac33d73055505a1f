package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sotp_valuation/pkg/core/report"
	"sotp_valuation/pkg/core/validate"
	"sotp_valuation/pkg/core/valuation"
)

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Run the full valuation and write the report",
	Long: `Runs SOTP scenarios, sensitivity tables, real estate cross-checks,
dividend capacity, DCF, LBO and the football field, then writes CSV tables,
summary.json and a Markdown / HTML report to --out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		flags := cmd.Flags()
		opts := options()
		opts.OutputDir, _ = flags.GetString("out")
		opts.Strict, _ = flags.GetBool("strict")
		opts.Archive, _ = flags.GetBool("archive")
		if p, _ := flags.GetFloat64("entry-price"); p > 0 {
			opts.LBOEntryPrice = p
		}

		orch := newOrchestrator()
		if opts.Archive {
			dir, _ := flags.GetString("archive-dir")
			archive, closeFn, err := openArchive(ctx, dir)
			if err != nil {
				return err
			}
			defer closeFn()
			orch.SetRepository(archive)
		}

		b, paths, err := orch.Run(ctx, opts)
		if b != nil {
			printScenarios(b.Scenarios)
		}
		if err != nil {
			return err
		}
		if b.FootballField != nil {
			fmt.Println()
			printFootballField(*b.FootballField)
		}
		if b.Validation != nil {
			fmt.Printf("\nIntegrity checks: %d passed, %d failed, %d warnings (%.1f%%)\n",
				b.Validation.Passed, b.Validation.Failed, b.Validation.Warnings, b.Validation.PassRate())
		}
		for _, p := range paths {
			fmt.Println("  wrote", p)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the integrity checks and fail on any failed check",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		orch := newOrchestrator()
		opts := options()
		in, err := orch.Prepare(ctx, opts)
		if err != nil {
			return err
		}
		b, err := orch.Value(in, opts)
		if err != nil {
			return err
		}
		rep := b.Validation

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCHECK\tEXPECTED\tACTUAL\tNOTE")
		for _, c := range rep.Checks {
			if c.Status == validate.Pass && !viper.GetBool("verbose") {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Status, c.Name, report.Fixed(c.Expected, 4), report.Fixed(c.Actual, 4), c.Message)
		}
		w.Flush()

		fmt.Printf("\n%d passed, %d failed, %d warnings; pass rate %.1f%%\n", rep.Passed, rep.Failed, rep.Warnings, rep.PassRate())
		if !rep.OK() {
			return fmt.Errorf("%d integrity checks failed", rep.Failed)
		}
		return nil
	},
}

func init() {
	valueCmd.Flags().String("out", "output", "output directory")
	valueCmd.Flags().Bool("strict", false, "abort without writing when an integrity check fails")
	valueCmd.Flags().Bool("archive", false, "archive the run (Postgres when DATABASE_URL is set)")
	valueCmd.Flags().String("archive-dir", ".cache/runs", "file archive directory without DATABASE_URL")
	valueCmd.Flags().Float64("entry-price", 0, "LBO entry price per share (default 355)")
}

func printScenarios(rows []valuation.ScenarioRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Scenario\tCap rate\tOpCo\tPropCo\tEV\tEquity\tPer share\tUpside\t")
	for _, r := range rows {
		if r.Result == nil {
			fmt.Fprintf(w, "%s\t%s\t\t\t\t\t\t%s\t\n", r.Scenario, report.Pct(r.Params.CapRate), r.Error)
			continue
		}
		v := r.Result
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Scenario, report.Pct(r.Params.CapRate),
			report.Millions(v.OpCoValue), report.Millions(v.PropCoValue), report.Millions(v.TotalEV),
			report.Millions(v.EquityValue), report.Dollars(v.PerShare), report.Pct(v.Upside))
	}
	w.Flush()
}

func printFootballField(ff valuation.FootballField) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Method\tLow\tBase\tHigh\tWeight\t")
	for _, m := range ff.Rows() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", m.Label, report.Dollars(m.Low), report.Dollars(m.Base), report.Dollars(m.High), report.Pct(m.Weight))
	}
	w.Flush()
	fmt.Printf("Current price %s, weighted base %s (%s upside)\n",
		report.Dollars(ff.CurrentPrice), report.Dollars(ff.Weighted.Base), report.Pct(ff.BaseUpside))
}
