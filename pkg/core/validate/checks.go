package validate

import (
	"fmt"
	"sort"

	"sotp_valuation/pkg/core/valuation"
)

type Status string

const (
	Pass Status = "PASS"
	Fail Status = "FAIL"
	Warn Status = "WARN"
)

// Tolerances for the identity checks, as relative differences.
const (
	SOTPTolerance        = 0.01
	DCFTolerance         = 0.01
	MOICTolerance        = 0.05
	CrossMethodTolerance = 0.01
)

// Reasonableness bands. Values outside them warn, never fail.
var (
	MultipleBand = [2]float64{5, 15}
	CapRateBand  = [2]float64{0.04, 0.10}
)

// Projection sanity thresholds in percent.
const (
	MaxRevenueCAGR     = 15.0
	MinRevenueCAGR     = -5.0
	EBITDAYoYThreshold = 25.0
)

// CheckResult is one line of the integrity report.
type CheckResult struct {
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Diff      float64 `json:"diff"` // relative
	Tolerance float64 `json:"tolerance"`
	Message   string  `json:"message,omitempty"`
}

// Report collects check results. Warnings do not count toward the pass rate.
type Report struct {
	Checks   []CheckResult `json:"checks"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Warnings int           `json:"warnings"`
}

func (r *Report) add(c CheckResult) {
	switch c.Status {
	case Pass:
		r.Passed++
	case Fail:
		r.Failed++
	case Warn:
		r.Warnings++
	}
	r.Checks = append(r.Checks, c)
}

// PassRate is passed / (passed + failed) in percent; 0 with no checks.
func (r Report) PassRate() float64 {
	total := r.Passed + r.Failed
	if total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(total) * 100
}

func (r Report) OK() bool { return r.Failed == 0 }

// Failures returns the failed checks.
func (r Report) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Status == Fail {
			out = append(out, c)
		}
	}
	return out
}

func identity(name string, expected, actual, tol float64) CheckResult {
	d := RelativeDiff(expected, actual)
	c := CheckResult{Name: name, Expected: expected, Actual: actual, Diff: d, Tolerance: tol, Status: Pass}
	if d > tol {
		c.Status = Fail
		c.Message = fmt.Sprintf("off by %.2f%% (limit %.2f%%)", d*100, tol*100)
	}
	return c
}

func band(name string, v float64, b [2]float64) CheckResult {
	c := CheckResult{Name: name, Actual: v, Status: Pass}
	if v < b[0] || v > b[1] {
		c.Status = Warn
		c.Message = fmt.Sprintf("%.4g outside typical range %.4g-%.4g", v, b[0], b[1])
	}
	return c
}

// CheckScenarios verifies each scenario's SOTP arithmetic and flags
// unusual multiples or cap rates.
func CheckScenarios(rows []valuation.ScenarioRow) []CheckResult {
	var out []CheckResult
	for _, row := range rows {
		if row.Result == nil {
			out = append(out, CheckResult{
				Name:    row.Scenario + ": SOTP valuation",
				Status:  Fail,
				Message: row.Error,
			})
			continue
		}
		r := row.Result
		out = append(out,
			identity(row.Scenario+": SOTP EV = sum of components", r.ComponentSum(), r.TotalEV, SOTPTolerance),
			identity(row.Scenario+": equity = EV - net debt", r.TotalEV-r.NetDebt, r.EquityValue, SOTPTolerance),
		)

		for _, s := range sortedKeys(row.Params.Multiples) {
			out = append(out, band(fmt.Sprintf("%s: %s multiple", row.Scenario, s), row.Params.Multiples[s], MultipleBand))
		}
		out = append(out, band(row.Scenario+": cap rate", row.Params.CapRate, CapRateBand))
		for _, s := range sortedKeys(row.Params.CapRates) {
			out = append(out, band(fmt.Sprintf("%s: %s cap rate", row.Scenario, s), row.Params.CapRates[s], CapRateBand))
		}
	}
	return out
}

// CheckDCF verifies EV = PV(FCF) + PV(terminal value) and the shape of the
// projection: revenue CAGR within bounds and no EBITDA jumps.
func CheckDCF(r valuation.DCFResult) []CheckResult {
	out := []CheckResult{
		identity("DCF: EV = PV(FCF) + PV(TV)", r.SumPVFCF+r.PVTerminal, r.EnterpriseValue, DCFTolerance),
	}
	n := len(r.Projections)
	if n < 2 {
		return out
	}

	first, last := r.Projections[0], r.Projections[n-1]
	cagr := CalculateCAGR(first.Revenue, last.Revenue, last.Year-first.Year)
	out = append(out, band("DCF: projected revenue CAGR (%)", cagr, [2]float64{MinRevenueCAGR, MaxRevenueCAGR}))

	for i := 1; i < n; i++ {
		oc := CheckForOutlier("EBITDA", r.Projections[i].EBITDA, r.Projections[i-1].EBITDA, EBITDAYoYThreshold)
		if oc.IsOutlier {
			out = append(out, CheckResult{
				Name:    fmt.Sprintf("DCF: year %d EBITDA", r.Projections[i].Year),
				Status:  Warn,
				Actual:  oc.ChangePct,
				Message: oc.Reason,
			})
		}
	}
	return out
}

// CheckLBO verifies MOIC = exit equity / initial equity.
func CheckLBO(r valuation.LBOReturns) CheckResult {
	if r.InitialEquity <= 0 {
		return CheckResult{Name: "LBO: MOIC = exit / initial equity", Status: Fail, Message: "no sponsor equity"}
	}
	return identity("LBO: MOIC = exit / initial equity", r.ExitEquity/r.InitialEquity, r.MOIC, MOICTolerance)
}

// CheckCrossMethod compares the base SOTP per-share value with the SOTP
// bar on the football field.
func CheckCrossMethod(rows []valuation.ScenarioRow, ff valuation.FootballField, base string) CheckResult {
	name := "SOTP base per share = football field SOTP"
	bar, ok := ff.Method(valuation.MethodSOTP)
	if !ok {
		return CheckResult{Name: name, Status: Fail, Message: "football field has no SOTP bar"}
	}
	for _, r := range rows {
		if r.Scenario == base && r.Result != nil {
			return identity(name, r.Result.PerShare, bar.Base, CrossMethodTolerance)
		}
	}
	return CheckResult{Name: name, Status: Fail, Message: fmt.Sprintf("no %s scenario result", base)}
}

// Run checks a full suite.
func Run(s valuation.SuiteResult) Report {
	var rep Report
	for _, c := range CheckScenarios(s.Scenarios) {
		rep.add(c)
	}
	for _, c := range CheckDCF(s.DCF) {
		rep.add(c)
	}
	rep.add(CheckLBO(s.LBO))
	rep.add(CheckCrossMethod(s.Scenarios, s.FootballField, "base"))
	return rep
}

// RunScenarios checks scenario rows alone, for filings without the
// consolidated block the DCF and LBO need.
func RunScenarios(rows []valuation.ScenarioRow) Report {
	var rep Report
	for _, c := range CheckScenarios(rows) {
		rep.add(c)
	}
	return rep
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
