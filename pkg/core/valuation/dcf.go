package valuation

import (
	"fmt"
	"math"

	"sotp_valuation/pkg/models"
)

// GrowthPhases holds revenue growth for the near, mid and long projection terms.
type GrowthPhases struct {
	Years1To3  float64 `json:"years_1_3" yaml:"years_1_3"`
	Years4To5  float64 `json:"years_4_5" yaml:"years_4_5"`
	Years6To10 float64 `json:"years_6_10" yaml:"years_6_10"`
}

func (g GrowthPhases) forYear(year int) float64 {
	switch {
	case year <= 3:
		return g.Years1To3
	case year <= 5:
		return g.Years4To5
	default:
		return g.Years6To10
	}
}

// DCFAssumptions drive the projection. Percentages are of revenue except
// NWCPct, which applies to the revenue increase.
type DCFAssumptions struct {
	Years           int          `json:"years" yaml:"years"`
	RevenueGrowth   GrowthPhases `json:"revenue_growth" yaml:"revenue_growth"`
	TargetMargin    float64      `json:"ebitda_margin_target" yaml:"ebitda_margin_target"`
	TaxRate         float64      `json:"tax_rate" yaml:"tax_rate"`
	CapexPct        float64      `json:"capex_pct" yaml:"capex_pct"`
	DepreciationPct float64      `json:"depreciation_pct" yaml:"depreciation_pct"`
	NWCPct          float64      `json:"nwc_change_pct" yaml:"nwc_change_pct"`
	TerminalGrowth  float64      `json:"terminal_growth" yaml:"terminal_growth"`
	WACC            float64      `json:"wacc" yaml:"wacc"`
}

// DefaultDCFAssumptions: 5/4/3% growth, margin to 19%, 21% tax, capex 4%,
// D&A 3.7%, NWC 1% of growth, 2.5% terminal growth, 8.5% WACC.
func DefaultDCFAssumptions() DCFAssumptions {
	return DCFAssumptions{
		Years:           10,
		RevenueGrowth:   GrowthPhases{Years1To3: 0.05, Years4To5: 0.04, Years6To10: 0.03},
		TargetMargin:    0.19,
		TaxRate:         0.21,
		CapexPct:        0.04,
		DepreciationPct: 0.037,
		NWCPct:          0.01,
		TerminalGrowth:  0.025,
		WACC:            0.085,
	}
}

// DCFInput encapsulates all inputs required for a Discounted Cash Flow valuation
type DCFInput struct {
	Base        models.Consolidated
	Assumptions DCFAssumptions
	Market      MarketInputs
}

type ProjectionYear struct {
	Year           int     `json:"year"`
	Revenue        float64 `json:"revenue"`
	Growth         float64 `json:"growth"`
	EBITDA         float64 `json:"ebitda"`
	EBITDAMargin   float64 `json:"ebitda_margin"`
	Depreciation   float64 `json:"depreciation"`
	EBIT           float64 `json:"ebit"`
	Taxes          float64 `json:"taxes"`
	NOPAT          float64 `json:"nopat"`
	Capex          float64 `json:"capex"`
	NWCChange      float64 `json:"nwc_change"`
	FCF            float64 `json:"fcf"`
	DiscountFactor float64 `json:"discount_factor"`
	PVFCF          float64 `json:"pv_fcf"`
}

// DCFResult holds the valuation outputs
type DCFResult struct {
	Assumptions     DCFAssumptions   `json:"assumptions"`
	Projections     []ProjectionYear `json:"projections"`
	SumPVFCF        float64          `json:"sum_pv_fcf"`
	TerminalFCF     float64          `json:"terminal_fcf"`
	TerminalValue   float64          `json:"terminal_value"`
	PVTerminal      float64          `json:"pv_terminal"`
	EnterpriseValue float64          `json:"enterprise_value"`
	EquityValue     float64          `json:"equity_value"`
	PerShare        float64          `json:"per_share"`
	Upside          float64          `json:"upside"`
	ImpliedMultiple float64          `json:"implied_exit_multiple"` // TV / final-year EBITDA
	TerminalShare   float64          `json:"terminal_share"`        // PV(TV) / EV
}

// CalculateDCF projects free cash flow, capitalizes the final year with the
// Gordon growth formula and discounts everything at a single WACC.
func CalculateDCF(input DCFInput) (DCFResult, error) {
	a := input.Assumptions
	if a.Years <= 0 {
		a.Years = 10
	}
	if !(a.WACC > a.TerminalGrowth) {
		return DCFResult{}, fmt.Errorf("wacc %.4f, g %.4f: %w", a.WACC, a.TerminalGrowth, ErrInvalidDiscountRate)
	}
	if input.Base.Revenue <= 0 {
		return DCFResult{}, fmt.Errorf("base revenue %v: %w", input.Base.Revenue, ErrInvalidInput)
	}
	if err := input.Market.validate(); err != nil {
		return DCFResult{}, err
	}

	baseMargin := input.Base.EBITDA / input.Base.Revenue
	step := (a.TargetMargin - baseMargin) / float64(a.Years)

	res := DCFResult{Assumptions: a, Projections: make([]ProjectionYear, 0, a.Years)}
	prevRevenue := input.Base.Revenue
	margin := baseMargin

	for year := 1; year <= a.Years; year++ {
		g := a.RevenueGrowth.forYear(year)
		revenue := prevRevenue * (1 + g)
		margin += step

		p := ProjectionYear{
			Year:         year,
			Revenue:      revenue,
			Growth:       g,
			EBITDA:       revenue * margin,
			EBITDAMargin: margin,
			Depreciation: revenue * a.DepreciationPct,
			Capex:        revenue * a.CapexPct,
			NWCChange:    (revenue - prevRevenue) * a.NWCPct,
		}
		p.EBIT = p.EBITDA - p.Depreciation
		p.Taxes = p.EBIT * a.TaxRate
		p.NOPAT = p.EBIT - p.Taxes
		p.FCF = p.NOPAT + p.Depreciation - p.Capex - p.NWCChange

		p.DiscountFactor = math.Pow(1+a.WACC, float64(year))
		p.PVFCF = p.FCF / p.DiscountFactor
		res.SumPVFCF += p.PVFCF

		res.Projections = append(res.Projections, p)
		prevRevenue = revenue
	}

	last := res.Projections[len(res.Projections)-1]
	res.TerminalFCF = last.FCF * (1 + a.TerminalGrowth)
	res.TerminalValue = res.TerminalFCF / (a.WACC - a.TerminalGrowth)
	res.PVTerminal = res.TerminalValue / last.DiscountFactor

	res.EnterpriseValue = res.SumPVFCF + res.PVTerminal
	res.EquityValue = res.EnterpriseValue - input.Market.NetDebt
	res.PerShare = res.EquityValue / input.Market.SharesOutstanding
	res.Upside = (res.PerShare - input.Market.SharePrice) / input.Market.SharePrice
	if last.EBITDA != 0 {
		res.ImpliedMultiple = res.TerminalValue / last.EBITDA
	}
	if res.EnterpriseValue != 0 {
		res.TerminalShare = res.PVTerminal / res.EnterpriseValue
	}
	return res, nil
}

// DCFSensitivity tabulates per-share value over WACC (rows) x terminal growth
// (columns). Cells with WACC <= g are NaN.
func DCFSensitivity(input DCFInput, waccs, growths []float64) (SensitivityTable, error) {
	if len(waccs) == 0 || len(growths) == 0 {
		return SensitivityTable{}, fmt.Errorf("empty wacc or growth axis: %w", ErrInvalidInput)
	}
	t := SensitivityTable{
		Scenario: "dcf",
		RowLabel: "wacc",
		ColLabel: "terminal growth",
		Rows:     waccs,
		Cols:     growths,
		Values:   make([][]float64, len(waccs)),
	}
	for i := range t.Values {
		t.Values[i] = make([]float64, len(growths))
	}
	cartesian([]int{len(waccs), len(growths)}, func(idx []int) {
		in := input
		in.Assumptions.WACC = waccs[idx[0]]
		in.Assumptions.TerminalGrowth = growths[idx[1]]
		v := math.NaN()
		if r, err := CalculateDCF(in); err == nil {
			v = r.PerShare
		}
		t.Values[idx[0]][idx[1]] = v
	})
	return t, nil
}

// DefaultDCFSensitivityAxes: WACC 7%-11.5% by 0.5%, growth 1.5%-3.25% by 0.25%.
func DefaultDCFSensitivityAxes() (waccs, growths []float64) {
	return Range(0.07, 0.12, 0.005), Range(0.015, 0.035, 0.0025)
}
