package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sotp_valuation/pkg/core/facility"
	"sotp_valuation/pkg/core/npi"
	"sotp_valuation/pkg/core/report"
)

var facilitiesCmd = &cobra.Command{
	Use:   "facilities",
	Short: "Facility roster summaries and NPI enrichment",
}

var facilitiesSummaryCmd = &cobra.Command{
	Use:   "summary ROSTER",
	Short: "Beds and ownership by segment and state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seg, _ := cmd.Flags().GetString("segment")
		rows, err := facility.LoadRoster(args[0], seg)
		if err != nil {
			return err
		}
		s := facility.Summarize(rows)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "Segment\tFacilities\tBeds\tOwned beds\tLeased beds\tOwned\tAvg beds\tL/M/S\t")
		for _, ss := range append(s.Segments, s.Total) {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%.0f\t%d/%d/%d\t\n", ss.Segment, ss.Facilities, ss.Beds,
				ss.OwnedBeds, ss.LeasedBeds, report.Pct(ss.OwnedBedPct()), ss.AvgBeds(), ss.Large, ss.Medium, ss.Small)
		}
		w.Flush()

		top, _ := cmd.Flags().GetInt("top")
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATE\tFACILITIES\tBEDS")
		for i, st := range s.States {
			if i == top {
				break
			}
			fmt.Fprintf(w, "%s\t%d\t%d\n", st.State, st.Facilities, st.Beds)
		}
		w.Flush()

		fmt.Printf("\nLargest facilities\n")
		for _, f := range facility.Largest(rows, top) {
			fmt.Printf("  %-45s %-20s %s  %4d beds  %s\n", f.Name, f.City, f.State, f.Beds, f.Ownership)
		}
		return nil
	},
}

var facilitiesNPICmd = &cobra.Command{
	Use:   "npi ROSTER",
	Short: "Match roster facilities to NPPES organization records",
	Long: `Looks every facility up in the CMS NPI registry, trying name variations
until one returns candidates, and writes the enriched roster as CSV.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		flags := cmd.Flags()
		seg, _ := flags.GetString("segment")
		rows, err := facility.LoadRoster(args[0], seg)
		if err != nil {
			return err
		}

		var ccn npi.CCNDirectory
		if path, _ := flags.GetString("ccn"); path != "" {
			if ccn, err = npi.LoadCCNDirectory(path); err != nil {
				return err
			}
		}

		cfg := npi.DefaultConfig()
		if rps, _ := flags.GetFloat64("rps"); rps > 0 {
			cfg.RequestsPerSecond = rps
		}
		if limit, _ := flags.GetInt("limit"); limit > 0 {
			cfg.Limit = limit
		}

		matches, batchErr := npi.NewClient(cfg).Batch(ctx, rows, ccn)
		// Partial results are still written when interrupted.
		out, _ := flags.GetString("out")
		if len(matches) > 0 {
			if err := writeCSV(out, func(f *os.File) error { return npi.WriteCSV(f, matches) }); err != nil {
				return err
			}
			abs, _ := filepath.Abs(out)
			fmt.Printf("wrote %d rows to %s\n", len(matches), abs)
		}
		return batchErr
	},
}

func init() {
	for _, c := range []*cobra.Command{facilitiesSummaryCmd, facilitiesNPICmd} {
		c.Flags().String("segment", "", "segment for rows without a Segment column")
	}
	facilitiesSummaryCmd.Flags().Int("top", 10, "states and facilities to list")

	facilitiesNPICmd.Flags().String("out", "output/facilities_npi.csv", "enriched roster CSV")
	facilitiesNPICmd.Flags().String("ccn", "", "CSV of facility name to CMS certification number")
	facilitiesNPICmd.Flags().Float64("rps", 0, "registry requests per second (default 5)")
	facilitiesNPICmd.Flags().Int("limit", 0, "candidates per query (default 10, max 200)")

	facilitiesCmd.AddCommand(facilitiesSummaryCmd, facilitiesNPICmd)
}
