// Package pipeline runs a full valuation: load the filing, refresh inputs,
// value every model, check the results, write the report and archive it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sotp_valuation/pkg/core/facility"
	"sotp_valuation/pkg/core/ingest"
	"sotp_valuation/pkg/core/quote"
	"sotp_valuation/pkg/core/report"
	"sotp_valuation/pkg/core/store"
	"sotp_valuation/pkg/core/validate"
	"sotp_valuation/pkg/core/valuation"
	"sotp_valuation/pkg/models"
)

// ErrValidationFailed is returned by strict runs whose integrity checks fail.
var ErrValidationFailed = errors.New("integrity checks failed")

// PriceSource returns the latest close for a ticker.
type PriceSource interface {
	LastClose(ctx context.Context, ticker string) (*quote.Quote, error)
}

// RunRepository persists finished runs.
type RunRepository interface {
	Save(ctx context.Context, rec *store.RunRecord) error
}

// Options describe where a run reads its inputs from and what it produces.
type Options struct {
	FilingPath    string
	FieldMapPath  string // when set, FilingPath is a raw extraction dump
	ScenarioPath  string // empty: bear / base / bull defaults
	RosterPath    string // optional facility roster overriding segment beds
	RosterSegment string // segment for rosters without a Segment column
	PeersPath     string // optional peer list replacing the fixed comps / precedents ranges
	OutputDir     string // empty: nothing is written

	LivePrice     bool    // refresh the share price from PriceSource
	PriceOverride float64 // wins over both the filing and LivePrice

	Normalize valuation.NormalizeOptions
	Weights   valuation.AllocationWeights
	CAPMWACC  bool // discount the DCF at the CAPM WACC instead of the 8.5% default

	LBOEntryPrice    float64
	LBOEntryPrices   []float64
	LBOExitMultiples []float64

	Strict  bool // failed checks abort the run before anything is written
	Archive bool
}

// DefaultOptions reads data/uhs_10k_2024.json with the standard assumptions.
func DefaultOptions() Options {
	entries, exits := valuation.DefaultLBOGridAxes()
	return Options{
		FilingPath:       "data/uhs_10k_2024.json",
		Weights:          valuation.EqualWeights(),
		LBOEntryPrice:    355,
		LBOEntryPrices:   entries,
		LBOExitMultiples: exits,
	}
}

// Inputs are the immutable values every model starts from.
type Inputs struct {
	Filing    *models.Filing
	Scenarios valuation.ScenarioSet
	Norms     []valuation.RentNormalization
	Market    valuation.MarketInputs
	Roster    *facility.Summary
	Peers     []valuation.PeerComparable
}

// HasConsolidated reports whether the filing carries the company-level block
// the DCF and LBO models need.
func (in *Inputs) HasConsolidated() bool {
	return in.Filing.Consolidated.Revenue > 0 && in.Filing.Consolidated.EBITDA > 0
}

// BaseScenario returns "base", or the first scenario when there is none.
func (in *Inputs) BaseScenario() valuation.ScenarioParameters {
	if p, err := in.Scenarios.Get("base"); err == nil {
		return p
	}
	return in.Scenarios.All()[0]
}

// ValuationOrchestrator manages the end-to-end run.
type ValuationOrchestrator struct {
	prices  PriceSource
	repo    RunRepository
	Verbose bool
}

// NewValuationOrchestrator creates an orchestrator. Either dependency may be
// nil when live prices or archiving are never requested.
func NewValuationOrchestrator(prices PriceSource, repo RunRepository) *ValuationOrchestrator {
	return &ValuationOrchestrator{prices: prices, repo: repo}
}

// SetRepository allows injecting a custom repository (e.g., for testing).
func (p *ValuationOrchestrator) SetRepository(repo RunRepository) {
	p.repo = repo
}

func (p *ValuationOrchestrator) logf(format string, args ...interface{}) {
	if p.Verbose {
		fmt.Printf("[SOTP] "+format+"\n", args...)
	}
}

// Prepare loads and normalizes every input a run needs.
func (p *ValuationOrchestrator) Prepare(ctx context.Context, opts Options) (*Inputs, error) {
	// 1. Filing
	var (
		f   *models.Filing
		err error
	)
	if opts.FieldMapPath != "" {
		f, err = ingest.ExtractFilingFile(opts.FilingPath, opts.FieldMapPath)
	} else {
		f, err = ingest.LoadFiling(opts.FilingPath)
	}
	if err != nil {
		return nil, err
	}
	p.logf("loaded %s FY%d (%d segments)", f.Ticker, f.FiscalYear, len(f.Segments))

	in := &Inputs{Filing: f}

	// 2. Facility roster
	if opts.RosterPath != "" {
		roster, err := facility.LoadRoster(opts.RosterPath, opts.RosterSegment)
		if err != nil {
			return nil, err
		}
		sum := facility.Summarize(roster)
		segs, err := sum.ApplyBeds(f.Segments)
		if err != nil {
			return nil, err
		}
		f.Segments = segs
		in.Roster = &sum
		p.logf("applied roster: %d facilities, %d beds", sum.Total.Facilities, sum.Total.Beds)
	}

	// 3. Share price
	switch {
	case opts.PriceOverride > 0:
		f.Market.SharePrice = opts.PriceOverride
	case opts.LivePrice:
		if p.prices == nil {
			return nil, fmt.Errorf("live price requested without a price source")
		}
		q, err := p.prices.LastClose(ctx, f.Ticker)
		if err != nil {
			return nil, fmt.Errorf("refresh %s price: %w", f.Ticker, err)
		}
		f.Market.SharePrice = q.Close
		f.Market.AsOf = q.Time.Format("2006-01-02")
		p.logf("%s last close %.2f (%s)", f.Ticker, q.Close, f.Market.AsOf)
	}
	if f.Market.SharePrice <= 0 {
		return nil, fmt.Errorf("%s: %w", f.Ticker, valuation.ErrInvalidPrice)
	}

	// 4. Scenarios
	if opts.ScenarioPath != "" {
		in.Scenarios, err = valuation.LoadScenarios(opts.ScenarioPath)
		if err != nil {
			return nil, err
		}
	} else {
		in.Scenarios = valuation.DefaultScenarios()
	}

	if opts.PeersPath != "" {
		if in.Peers, err = valuation.LoadPeers(opts.PeersPath); err != nil {
			return nil, err
		}
		p.logf("loaded %d peers", len(in.Peers))
	}

	// 5. Rent normalization
	in.Norms, err = valuation.NormalizeSegments(f.Segments, opts.Normalize)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", f.Ticker, err)
	}
	in.Market = valuation.MarketInputsFromFiling(f)
	return in, nil
}

// Value runs every model over prepared inputs and assembles the report
// bundle, including its integrity checks.
func (p *ValuationOrchestrator) Value(in *Inputs, opts Options) (*report.Bundle, error) {
	f := in.Filing
	cons := valuation.Consolidate(in.Norms)
	b := &report.Bundle{
		Company:       f.Company,
		Ticker:        f.Ticker,
		FiscalYear:    f.FiscalYear,
		GeneratedAt:   time.Now().UTC(),
		Normalization: in.Norms,
		Consolidated:  cons,
	}

	// SOTP scenarios
	b.Scenarios = valuation.RunScenarios(in.Norms, in.Scenarios, in.Market)
	for _, row := range b.Scenarios {
		if row.Result == nil {
			fmt.Printf("[SOTP] scenario %s failed: %s\n", row.Scenario, row.Error)
			continue
		}
		p.logf("%-8s EV %s, %s per share", row.Scenario, report.Millions(row.Result.TotalEV), report.Dollars(row.Result.PerShare))
	}

	base := in.BaseScenario()
	tables, err := valuation.StandardTables(in.Norms, base, in.Market)
	if err != nil {
		fmt.Printf("[SOTP] standard sensitivity tables skipped: %v\n", err)
	} else {
		b.Sensitivity = tables
	}

	// PropCo cross-checks run at the base cap rate, so they need a valued base row.
	baseOK := scenarioValued(b.Scenarios, base.Name())
	if !baseOK {
		fmt.Printf("[SOTP] base scenario %s failed; real estate reconciliation and dividend capacity skipped\n", base.Name())
	}
	if ppe := f.BalanceSheet.NetPPE; ppe > 0 {
		weights := opts.Weights
		if weights == (valuation.AllocationWeights{}) {
			weights = valuation.EqualWeights()
		}
		alloc, err := valuation.AllocateRealEstate(f.Segments, ppe, weights)
		if err != nil {
			return nil, err
		}
		b.Allocation = &alloc
		if baseOK {
			rec, err := valuation.ReconcileRealEstate(in.Norms, ppe, base.CapRate())
			if err != nil {
				return nil, err
			}
			b.Reconciliation = &rec
		}
	}

	if baseOK {
		divIn := valuation.DefaultDividendInput(cons.PropCoNOI)
		divIn.CapRate = base.CapRate()
		div, err := valuation.AnalyzeDividend(divIn)
		if err != nil {
			return nil, fmt.Errorf("dividend analysis: %w", err)
		}
		b.Dividend = &div
	}

	// Full suite when the consolidated block is present and the SOTP bar
	// can be drawn from bear / base / bull.
	if !in.HasConsolidated() {
		p.logf("no consolidated financials; DCF, LBO and football field skipped")
		rep := validate.RunScenarios(b.Scenarios)
		b.Validation = &rep
		return b, nil
	}
	for _, name := range []string{"bear", "base", "bull"} {
		if !scenarioValued(b.Scenarios, name) {
			fmt.Printf("[SOTP] no %s result; DCF, LBO and football field skipped\n", name)
			rep := validate.RunScenarios(b.Scenarios)
			b.Validation = &rep
			return b, nil
		}
	}

	master := valuation.DefaultMasterInput(f, in.Norms)
	master.Scenarios = in.Scenarios
	master.Market = in.Market
	master.Peers = in.Peers
	if opts.CAPMWACC {
		w, err := master.UseCAPMWACC()
		if err != nil {
			return nil, err
		}
		b.WACC = &w
		p.logf("CAPM WACC %.2f%% (levered beta %.2f)", w.WACC*100, w.LeveredBeta)
	}
	suite, err := valuation.RunAllValuations(master)
	if err != nil {
		return nil, err
	}
	b.DCF = &suite.DCF
	b.FootballField = &suite.FootballField

	lboIn := valuation.LBOInput{
		Base:         f.Consolidated,
		Market:       in.Market,
		EntryPrice:   opts.LBOEntryPrice,
		ExitMultiple: master.LBOExitMultiple,
		Assumptions:  master.LBO,
	}
	if lboIn.EntryPrice > 0 {
		lbo, err := valuation.CalculateLBO(lboIn)
		if err != nil {
			return nil, err
		}
		b.LBO = &lbo
		suite.LBO = lbo
	} else {
		b.LBO = &suite.LBO
	}
	if len(opts.LBOEntryPrices) > 0 && len(opts.LBOExitMultiples) > 0 {
		b.LBOGrid = valuation.LBOGrid(lboIn, opts.LBOEntryPrices, opts.LBOExitMultiples)
	}

	rep := validate.Run(suite)
	b.Validation = &rep
	return b, nil
}

func scenarioValued(rows []valuation.ScenarioRow, name string) bool {
	for _, r := range rows {
		if r.Scenario == name {
			return r.Result != nil
		}
	}
	return false
}

// Run executes the full pipeline and returns the bundle with the paths
// written (if any).
func (p *ValuationOrchestrator) Run(ctx context.Context, opts Options) (*report.Bundle, []string, error) {
	start := time.Now()

	in, err := p.Prepare(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	b, err := p.Value(in, opts)
	if err != nil {
		return nil, nil, err
	}

	if b.Validation != nil {
		p.logValidation(*b.Validation)
		if opts.Strict && !b.Validation.OK() {
			return b, nil, fmt.Errorf("%d of %d: %w", b.Validation.Failed, b.Validation.Passed+b.Validation.Failed, ErrValidationFailed)
		}
	}

	if opts.Archive {
		if p.repo == nil {
			return b, nil, fmt.Errorf("archive requested without a repository")
		}
		id, err := p.archive(ctx, b)
		if err != nil {
			return b, nil, err
		}
		b.RunID = id
		fmt.Printf("[STORE] archived run %s\n", id)
	}

	var paths []string
	if opts.OutputDir != "" {
		paths, err = report.WriteAll(opts.OutputDir, b)
		if err != nil {
			return b, nil, err
		}
	}

	p.logf("run completed for %s in %v", b.Ticker, time.Since(start).Round(time.Millisecond))
	return b, paths, nil
}

func (p *ValuationOrchestrator) archive(ctx context.Context, b *report.Bundle) (string, error) {
	summary, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal run summary: %w", err)
	}
	rec := &store.RunRecord{
		Ticker:     b.Ticker,
		FiscalYear: b.FiscalYear,
		Scenarios:  b.Scenarios,
		Summary:    summary,
		CreatedAt:  b.GeneratedAt,
	}
	if err := p.repo.Save(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID.String(), nil
}

// logValidation prints failed and warned checks, and the pass rate.
func (p *ValuationOrchestrator) logValidation(rep validate.Report) {
	for _, c := range rep.Checks {
		switch c.Status {
		case validate.Fail:
			fmt.Printf("[SOTP] FAIL %s: %s\n", c.Name, c.Message)
		case validate.Warn:
			fmt.Printf("[SOTP] WARN %s: %s\n", c.Name, c.Message)
		}
	}
	p.logf("integrity checks: %d passed, %d failed, %d warnings (%.1f%% pass rate)",
		rep.Passed, rep.Failed, rep.Warnings, rep.PassRate())
}
