package ingest

import (
	"fmt"
	"math"
	"sort"

	"sotp_valuation/pkg/models"
)

// Reconciliation statuses.
const (
	StatusMatch            = "MATCH"
	StatusImmaterial       = "IMMATERIAL"
	StatusMaterialMismatch = "MATERIAL_MISMATCH"
)

// DefaultTolerance is the relative difference still treated as immaterial.
const DefaultTolerance = 0.005

// AuditCheckpoint compares a reported total against a sum derived from its
// parts.
type AuditCheckpoint struct {
	CheckpointName  string  `json:"checkpoint"`
	ReportedValue   float64 `json:"reported"`
	CalculatedValue float64 `json:"calculated"`
	Variance        float64 `json:"variance"`
	VariancePct     float64 `json:"variance_pct"`
	Status          string  `json:"status"`
}

// VerifyIntegrity compares derived sums against reported totals. Names
// present in only one map are skipped. Output is sorted by name.
func VerifyIntegrity(calculated, reported map[string]float64, tolerance float64) []AuditCheckpoint {
	names := make([]string, 0, len(reported))
	for name := range reported {
		if _, ok := calculated[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	checks := make([]AuditCheckpoint, 0, len(names))
	for _, name := range names {
		checks = append(checks, checkpoint(name, reported[name], calculated[name], tolerance))
	}
	return checks
}

func checkpoint(name string, reported, calculated, tolerance float64) AuditCheckpoint {
	diff := calculated - reported
	c := AuditCheckpoint{
		CheckpointName:  name,
		ReportedValue:   reported,
		CalculatedValue: calculated,
		Variance:        diff,
		Status:          StatusMatch,
	}
	if reported != 0 {
		c.VariancePct = diff / reported
	}
	if math.Abs(diff) < 1e-6 {
		return c
	}
	if reported == 0 || math.Abs(c.VariancePct) > tolerance {
		c.Status = StatusMaterialMismatch
	} else {
		c.Status = StatusImmaterial
	}
	return c
}

// ReconcileFiling ties segment data back to the consolidated figures and
// checks the balance sheet and cash flow identities the filing states.
func ReconcileFiling(f *models.Filing, tolerance float64) []AuditCheckpoint {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	calc := map[string]float64{}
	rep := map[string]float64{}

	var rev, ebitda float64
	for _, s := range f.Segments {
		rev += s.Revenue
		ebitda += s.ReportedEBITDA
	}
	if f.Consolidated.Revenue != 0 {
		calc["Segment revenue"] = rev
		rep["Segment revenue"] = f.Consolidated.Revenue
	}
	if f.Consolidated.EBITDA != 0 {
		calc["Segment EBITDA"] = ebitda
		rep["Segment EBITDA"] = f.Consolidated.EBITDA
	}
	if f.BalanceSheet.StatedNetDebt != nil {
		calc["Net debt"] = f.BalanceSheet.TotalDebt - f.BalanceSheet.Cash
		rep["Net debt"] = *f.BalanceSheet.StatedNetDebt
	}
	if c := f.Consolidated; c.FreeCashFlow != 0 && c.OperatingCashFlow != 0 {
		calc["Free cash flow"] = c.OperatingCashFlow - c.Capex
		rep["Free cash flow"] = c.FreeCashFlow
	}
	for _, s := range f.Segments {
		if s.EBITDAMargin == 0 || s.Revenue == 0 {
			continue
		}
		name := fmt.Sprintf("%s EBITDA margin", s.Name)
		calc[name] = s.ReportedEBITDA / s.Revenue
		rep[name] = s.EBITDAMargin
	}
	return VerifyIntegrity(calc, rep, tolerance)
}

// Material returns the checkpoints that failed reconciliation.
func Material(checks []AuditCheckpoint) []AuditCheckpoint {
	var out []AuditCheckpoint
	for _, c := range checks {
		if c.Status == StatusMaterialMismatch {
			out = append(out, c)
		}
	}
	return out
}
