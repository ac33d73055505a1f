package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sotp_valuation/pkg/core/ingest"
	"sotp_valuation/pkg/core/report"
)

var filingCmd = &cobra.Command{
	Use:   "filing",
	Short: "Fetch, split and reconcile 10-K filings",
}

var filingFetchCmd = &cobra.Command{
	Use:   "fetch TICKER",
	Short: "Download the latest 10-K from SEC EDGAR as text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		ticker := parseTicker(args[0])
		cache, _ := cmd.Flags().GetString("cache")
		fetcher := ingest.NewFilingFetcher(ingest.NewEDGARClient(os.Getenv("SEC_USER_AGENT")), cache)
		text, filing, err := fetcher.FetchLatest10K(ctx, ticker)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = fmt.Sprintf("%s_10k_%s.txt", strings.ToLower(ticker), filing.ReportDate.Format("2006"))
		}
		if dir := filepath.Dir(out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
			return err
		}
		fmt.Printf("%s 10-K %s (period %s), %d chars -> %s\n", ticker, filing.AccessionNumber,
			filing.ReportDate.Format("2006-01-02"), len(text), out)
		return nil
	},
}

var filingSectionsCmd = &cobra.Command{
	Use:   "sections FILE",
	Short: "List the Items of a 10-K text or HTML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		content := string(raw)
		if ext := strings.ToLower(filepath.Ext(args[0])); ext == ".htm" || ext == ".html" {
			if content, err = ingest.HTMLToText(content); err != nil {
				return err
			}
		}

		parser := ingest.NewTenKParser()
		if item, _ := cmd.Flags().GetString("item"); item != "" {
			s := parser.GetSectionByItem(content, item)
			if s == nil {
				return fmt.Errorf("item %s not found in %s", item, args[0])
			}
			fmt.Println(s.Content)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tTITLE\tCHARS\tPRIORITY")
		sections := parser.ParseSections(content)
		if pri, _ := cmd.Flags().GetBool("priority"); pri {
			sections = parser.GetPrioritySections(content)
		}
		for _, s := range sections {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.ItemNumber, s.Title, len(s.Content), s.Priority)
		}
		return w.Flush()
	},
}

var filingReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare segment sums with the reported consolidated totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		in, _, err := prepare(ctx)
		if err != nil {
			return err
		}
		tol, _ := cmd.Flags().GetFloat64("tolerance")
		checks := ingest.ReconcileFiling(in.Filing, tol)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHECKPOINT\tREPORTED\tCALCULATED\tVARIANCE\tSTATUS")
		for _, c := range checks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.CheckpointName, report.Millions(c.ReportedValue),
				report.Millions(c.CalculatedValue), report.Pct(c.VariancePct), c.Status)
		}
		w.Flush()

		if bad := ingest.Material(checks); len(bad) > 0 {
			return fmt.Errorf("%d material mismatches", len(bad))
		}
		return nil
	},
}

func init() {
	filingFetchCmd.Flags().String("cache", ".cache", "download cache directory (empty disables)")
	filingFetchCmd.Flags().String("out", "", "output text file (default <ticker>_10k_<year>.txt)")
	filingSectionsCmd.Flags().String("item", "", "print one Item, e.g. 7 or 1A")
	filingSectionsCmd.Flags().Bool("priority", false, "order Items by usefulness for segment valuation")
	filingReconcileCmd.Flags().Float64("tolerance", ingest.DefaultTolerance, "immaterial relative difference")

	filingCmd.AddCommand(filingFetchCmd, filingSectionsCmd, filingReconcileCmd)
}
