package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sotp_valuation/pkg/core/quote"
	"sotp_valuation/pkg/core/report"
)

var priceCmd = &cobra.Command{
	Use:   "price TICKER",
	Short: "Latest close from Yahoo Finance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		q, err := quote.NewClient().LastClose(ctx, parseTicker(args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %s (low %s, high %s, volume %d) as of %s\n", q.Ticker, q.Currency,
			report.Dollars(q.Close), report.Dollars(q.Low), report.Dollars(q.High), q.Volume, q.Time.Format("2006-01-02"))
		return nil
	},
}
