package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"sotp_valuation/pkg/core/ingest"
	"sotp_valuation/pkg/core/validate"
	"sotp_valuation/pkg/core/valuation"
	"sotp_valuation/pkg/models"
)

// calc-engine is a single-shot sidecar: a filing payload in, JSON out.
func main() {
	mode := flag.String("mode", "calculate", "Mode: check or calculate")
	dataStr := flag.String("data", "", "filing JSON payload")
	scenarioPath := flag.String("scenarios", "", "scenario table (YAML); default bear / base / bull")
	flag.Parse()

	if *dataStr == "" {
		fmt.Println("Error: No data provided")
		os.Exit(1)
	}

	f, err := ingest.ParseFiling([]byte(*dataStr))
	if err != nil {
		fmt.Printf("Error parsing filing: %v\n", err)
		os.Exit(1)
	}

	set := valuation.DefaultScenarios()
	if *scenarioPath != "" {
		if set, err = valuation.LoadScenarios(*scenarioPath); err != nil {
			fmt.Printf("Error loading scenarios: %v\n", err)
			os.Exit(1)
		}
	}

	switch *mode {
	case "check":
		err = runChecks(f, set)
	case "calculate":
		err = runCalculations(f, set)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// check reconciles segment sums against reported totals and runs the
// scenario integrity checks.
func check(f *models.Filing, set valuation.ScenarioSet) ([]ingest.AuditCheckpoint, validate.Report, error) {
	recon := ingest.ReconcileFiling(f, ingest.DefaultTolerance)
	out, err := calculate(f, set)
	if err != nil {
		return recon, validate.Report{}, err
	}
	return recon, validate.RunScenarios(out.Scenarios), nil
}

func runChecks(f *models.Filing, set valuation.ScenarioSet) error {
	recon, rep, err := check(f, set)
	if err != nil {
		return err
	}
	for _, c := range recon {
		fmt.Printf("%-18s %-28s reported %.1f calculated %.1f\n", c.Status, c.CheckpointName, c.ReportedValue, c.CalculatedValue)
	}
	for _, c := range rep.Checks {
		if c.Status != validate.Pass {
			fmt.Printf("%s %s: %s\n", c.Status, c.Name, c.Message)
		}
	}

	if bad := ingest.Material(recon); len(bad) > 0 || !rep.OK() {
		return fmt.Errorf("integrity imbalance: %d material mismatches, %d failed checks", len(bad), rep.Failed)
	}
	fmt.Printf("Success: %d checks passed\n", rep.Passed)
	return nil
}

type calcOutput struct {
	Company       string                        `json:"company"`
	Ticker        string                        `json:"ticker"`
	Normalization []valuation.RentNormalization `json:"normalization"`
	Scenarios     []valuation.ScenarioRow       `json:"scenarios"`
}

func calculate(f *models.Filing, set valuation.ScenarioSet) (calcOutput, error) {
	norms, err := valuation.NormalizeSegments(f.Segments, valuation.NormalizeOptions{})
	if err != nil {
		return calcOutput{}, err
	}
	return calcOutput{
		Company:       f.Company,
		Ticker:        f.Ticker,
		Normalization: norms,
		Scenarios:     valuation.RunScenarios(norms, set, valuation.MarketInputsFromFiling(f)),
	}, nil
}

func runCalculations(f *models.Filing, set valuation.ScenarioSet) error {
	out, err := calculate(f, set)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
