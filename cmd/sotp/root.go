package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sotp_valuation/pkg/core/pipeline"
	"sotp_valuation/pkg/core/quote"
	"sotp_valuation/pkg/core/store"
	"sotp_valuation/pkg/core/valuation"
)

var version = "v0.4.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sotp",
	Short: "Sum-of-the-parts valuation for hospital operators",
	Long: `sotp splits a hospital operator into OpCo and PropCo per segment,
values each part under bear / base / bull scenarios and cross-checks the
result against DCF, LBO, trading comps and precedent transactions.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (SOTP_*, e.g. SOTP_DATA)
  3. Config file (./config/sotp.yaml)
  4. Defaults`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("sotp " + version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./config/sotp.yaml)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.String("data", "data/uhs_10k_2024.json", "filing data file (JSON or HJSON)")
	pf.String("fieldmap", "", "jsonpath field map (YAML); treats --data as a raw extraction dump")
	pf.String("scenarios", "", "scenario table (YAML); default bear / base / bull")
	pf.String("roster", "", "facility roster CSV overriding segment bed counts")
	pf.String("roster-segment", "", "segment for roster rows without a Segment column")
	pf.Float64("price", 0, "share price override")
	pf.Bool("live-price", false, "refresh the share price from Yahoo Finance")
	pf.Float64("default-rent-per-bed", 0, "rent per bed ($M) for segments with no leased beds")
	pf.String("peers", "", "peer multiples (YAML) replacing the fixed comps / precedents ranges")
	pf.Bool("capm-wacc", false, "discount the DCF at the CAPM WACC")

	for _, name := range []string{
		"verbose", "data", "fieldmap", "scenarios", "roster", "roster-segment",
		"price", "live-price", "default-rent-per-bed", "peers", "capm-wacc",
	} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.AddCommand(versionCmd, valueCmd, sensitivityCmd, dcfCmd, lboCmd,
		dividendCmd, footballCmd, validateCmd, filingCmd, facilitiesCmd, priceCmd, serveCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("config")
		viper.SetConfigType("yaml")
		viper.SetConfigName("sotp")
	}

	// SOTP_DATA, SOTP_LIVE_PRICE, ...
	viper.SetEnvPrefix("SOTP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// options builds run options from flags, env and config file.
func options() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.FilingPath = viper.GetString("data")
	opts.FieldMapPath = viper.GetString("fieldmap")
	opts.ScenarioPath = viper.GetString("scenarios")
	opts.RosterPath = viper.GetString("roster")
	opts.RosterSegment = viper.GetString("roster-segment")
	opts.PriceOverride = viper.GetFloat64("price")
	opts.LivePrice = viper.GetBool("live-price")
	opts.Normalize = valuation.NormalizeOptions{DefaultRentPerBed: viper.GetFloat64("default-rent-per-bed")}
	opts.PeersPath = viper.GetString("peers")
	opts.CAPMWACC = viper.GetBool("capm-wacc")
	return opts
}

func newOrchestrator() *pipeline.ValuationOrchestrator {
	orch := pipeline.NewValuationOrchestrator(quote.NewClient(), nil)
	orch.Verbose = viper.GetBool("verbose")
	return orch
}

// prepare loads the filing and scenarios shared by every model command.
func prepare(ctx context.Context) (*pipeline.Inputs, pipeline.Options, error) {
	opts := options()
	in, err := newOrchestrator().Prepare(ctx, opts)
	return in, opts, err
}

// openArchive uses Postgres when DATABASE_URL is set, otherwise JSON files
// under dir. The returned func releases the pool.
func openArchive(ctx context.Context, dir string) (*store.RunArchive, func(), error) {
	if os.Getenv("DATABASE_URL") == "" {
		return store.NewRunArchive(nil, dir), func() {}, nil
	}
	if err := store.InitDB(ctx); err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx, store.GetPool()); err != nil {
		store.Close()
		return nil, nil, err
	}
	fmt.Println("[STORE] archiving to Postgres")
	return store.NewRunArchive(store.GetPool(), ""), store.Close, nil
}

// signalContext is cancelled on Ctrl-C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
