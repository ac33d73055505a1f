package main

import (
	"math"
	"os"
	"testing"

	"sotp_valuation/pkg/core/ingest"
	"sotp_valuation/pkg/core/valuation"
)

func loadUHS(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("../../data/uhs_10k_2024.json")
	if err != nil {
		t.Fatalf("Failed to read filing: %v", err)
	}
	return data
}

func TestCalculate_UHS(t *testing.T) {
	f, err := ingest.ParseFiling(loadUHS(t))
	if err != nil {
		t.Fatalf("ParseFiling: %v", err)
	}
	out, err := calculate(f, valuation.DefaultScenarios())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if out.Ticker != "UHS" {
		t.Errorf("Ticker = %q, want UHS", out.Ticker)
	}
	if len(out.Normalization) != 2 {
		t.Fatalf("Normalization rows = %d, want 2", len(out.Normalization))
	}
	if len(out.Scenarios) != 3 {
		t.Fatalf("Scenario rows = %d, want 3", len(out.Scenarios))
	}
	base := out.Scenarios[1]
	if base.Scenario != "base" || base.Result == nil {
		t.Fatalf("row 1 = %+v, want a valued base scenario", base)
	}
	if math.Abs(base.Result.PerShare-437.514) > 0.01 {
		t.Errorf("base per share = %.3f, want ~437.514", base.Result.PerShare)
	}
}

func TestCheck_UHS(t *testing.T) {
	f, err := ingest.ParseFiling(loadUHS(t))
	if err != nil {
		t.Fatalf("ParseFiling: %v", err)
	}
	recon, rep, err := check(f, valuation.DefaultScenarios())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(recon) == 0 {
		t.Error("expected reconciliation checkpoints")
	}
	if bad := ingest.Material(recon); len(bad) != 0 {
		t.Errorf("material mismatches: %+v", bad)
	}
	if !rep.OK() {
		t.Errorf("integrity checks failed: %+v", rep.Failures())
	}
}

func TestCheck_BrokenScenario(t *testing.T) {
	f, err := ingest.ParseFiling(loadUHS(t))
	if err != nil {
		t.Fatalf("ParseFiling: %v", err)
	}
	base, _ := valuation.DefaultScenarios().Get("base")
	// the set only checks names; the row fails at valuation time
	set, err := valuation.NewScenarioSet(base, base.WithName("broken").WithCapRate(0))
	if err != nil {
		t.Fatalf("NewScenarioSet: %v", err)
	}
	_, rep, err := check(f, set)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if rep.OK() {
		t.Error("expected a failed check for the broken scenario")
	}
}
