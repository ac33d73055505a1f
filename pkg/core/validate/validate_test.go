package validate

import (
	"math"
	"testing"

	"sotp_valuation/pkg/core/valuation"
	"sotp_valuation/pkg/models"
)

// =============================================================================
// UHS FY2024 INPUTS
// =============================================================================
// Source: Universal Health Services 10-K FY2024. $ millions.

func uhsSuite(t *testing.T) valuation.SuiteResult {
	t.Helper()
	f := &models.Filing{
		Segments: []models.Segment{
			{Key: "behavioral", Name: "Behavioral Health", Revenue: 6895.051, ReportedEBITDA: 1567.165,
				OwnedBeds: 22465, LeasedBeds: 1656, ActualRent: 47.0},
			{Key: "acute", Name: "Acute Care", Revenue: 8922.327, ReportedEBITDA: 1208.477,
				OwnedBeds: 5190, LeasedBeds: 1246, ActualRent: 99.1},
		},
		BalanceSheet: models.BalanceSheet{TotalDebt: 4504.5, Cash: 126.0},
		Capital:      models.CapitalStructure{SharesOutstanding: 64.98},
		Market:       models.MarketData{SharePrice: 208.39},
		Consolidated: models.Consolidated{
			Revenue: 15827.9, EBITDA: 2775.6, Depreciation: 584.8, EBIT: 1681.8,
			InterestExpense: 186.1, TaxExpense: 353.7, NetIncome: 1142.1,
			OperatingCashFlow: 2067, Capex: 640, FreeCashFlow: 1427,
		},
	}
	norms, err := valuation.NormalizeSegments(f.Segments, valuation.NormalizeOptions{})
	if err != nil {
		t.Fatalf("NormalizeSegments: %v", err)
	}
	suite, err := valuation.RunAllValuations(valuation.DefaultMasterInput(f, norms))
	if err != nil {
		t.Fatalf("RunAllValuations: %v", err)
	}
	return suite
}

// =============================================================================
// YoY / CAGR TESTS
// =============================================================================

func TestCalculateYoY(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		prior    float64
		expected float64
	}{
		{"Positive growth", 110, 100, 10.0},
		{"Negative growth", 90, 100, -10.0},
		{"Zero growth", 100, 100, 0.0},
		{"UHS revenue 2024", 15827.9, 14281.5, 10.828},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateYoY(tt.current, tt.prior)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("CalculateYoY(%v, %v) = %v, want %v", tt.current, tt.prior, result, tt.expected)
			}
		})
	}

	if !math.IsInf(CalculateYoY(5, 0), 1) {
		t.Error("growth from zero should be +Inf")
	}
}

func TestCalculateCAGR(t *testing.T) {
	// $100 growing to $121 over 2 years = 10% CAGR
	cagr := CalculateCAGR(100, 121, 2)
	if math.Abs(cagr-10.0) > 0.01 {
		t.Errorf("CAGR = %.2f%%, expected 10%%", cagr)
	}
	if CalculateCAGR(0, 100, 5) != 0 {
		t.Error("CAGR from a zero start should be 0")
	}
}

func TestCheckForOutlier(t *testing.T) {
	check := CheckForOutlier("EBITDA", 105, 100, 25.0)
	if check.IsOutlier {
		t.Error("Normal 5% growth flagged as outlier")
	}

	check = CheckForOutlier("EBITDA", 0, 100, 25.0)
	if !check.IsOutlier {
		t.Error("Zero value not flagged as outlier")
	}

	check = CheckForOutlier("EBITDA", 140, 100, 25.0)
	if !check.IsOutlier {
		t.Error("40% growth not flagged as outlier with 25% threshold")
	}
	t.Logf("Extreme change reason: %s", check.Reason)
}

// =============================================================================
// SUITE CHECKS
// =============================================================================

func TestRun_UHSSuitePasses(t *testing.T) {
	rep := Run(uhsSuite(t))

	for _, c := range rep.Checks {
		t.Logf("  [%s] %s %s", c.Status, c.Name, c.Message)
	}
	if !rep.OK() {
		t.Fatalf("failures: %+v", rep.Failures())
	}
	if rep.PassRate() != 100 {
		t.Errorf("pass rate = %.1f%%, want 100%%", rep.PassRate())
	}
	if rep.Warnings != 0 {
		t.Errorf("warnings = %d, want 0 for the default scenarios", rep.Warnings)
	}
	// 3 scenarios x (2 identities + 2 multiples + 1 cap rate), DCF identity + CAGR, MOIC, cross-method
	if want := 3*5 + 2 + 1 + 1; len(rep.Checks) != want {
		t.Errorf("got %d checks, want %d", len(rep.Checks), want)
	}
}

func TestCheckScenarios_FlagsBrokenResult(t *testing.T) {
	suite := uhsSuite(t)
	rows := append([]valuation.ScenarioRow(nil), suite.Scenarios...)

	bad := *rows[1].Result
	bad.TotalEV *= 1.05
	rows[1].Result = &bad
	rows = append(rows, valuation.ScenarioRow{Scenario: "broken", Error: "cap rate must be positive"})

	var failed []string
	for _, c := range CheckScenarios(rows) {
		if c.Status == Fail {
			failed = append(failed, c.Name)
		}
	}
	// The inflated EV breaks both the component identity and the equity bridge.
	if len(failed) != 3 {
		t.Fatalf("failed checks = %v, want 3", failed)
	}
	if failed[2] != "broken: SOTP valuation" {
		t.Errorf("last failure = %q", failed[2])
	}
}

func TestCheckScenarios_WarnsOutsideBands(t *testing.T) {
	p := valuation.NewScenario("aggressive", 0.035, map[string]float64{"behavioral": 16, "acute": 9})
	rows := []valuation.ScenarioRow{{
		Scenario: "aggressive",
		Params:   p.Config(),
		Result:   &valuation.ValuationResult{},
	}}

	warns := 0
	for _, c := range CheckScenarios(rows) {
		if c.Status == Warn {
			warns++
		}
	}
	if warns != 2 {
		t.Errorf("warnings = %d, want 2 (behavioral multiple and cap rate)", warns)
	}
}

func TestCheckLBO_MOIC(t *testing.T) {
	r := valuation.LBOReturns{InitialEquity: 1000, ExitEquity: 1839, MOIC: 1.839}
	if c := CheckLBO(r); c.Status != Pass {
		t.Errorf("status = %s, want PASS", c.Status)
	}

	r.MOIC = 2.0
	c := CheckLBO(r)
	if c.Status != Fail {
		t.Errorf("status = %s, want FAIL for an 8.8%% gap", c.Status)
	}
	if math.Abs(c.Diff-(2.0-1.839)/1.839) > 1e-9 {
		t.Errorf("diff = %v", c.Diff)
	}

	if c := CheckLBO(valuation.LBOReturns{}); c.Status != Fail {
		t.Error("zero sponsor equity should fail")
	}
}

func TestCheckCrossMethod_MissingBase(t *testing.T) {
	suite := uhsSuite(t)
	c := CheckCrossMethod(suite.Scenarios, suite.FootballField, "nonexistent")
	if c.Status != Fail {
		t.Errorf("status = %s, want FAIL", c.Status)
	}
}

func TestRunScenarios_ScenariosOnly(t *testing.T) {
	suite := uhsSuite(t)
	rep := RunScenarios(suite.Scenarios)
	if !rep.OK() {
		t.Fatalf("unexpected failures: %+v", rep.Failures())
	}
	if rep.Passed != 3*5 {
		t.Errorf("passed = %d, want 15", rep.Passed)
	}
}
