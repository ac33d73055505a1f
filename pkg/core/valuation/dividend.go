package valuation

import "fmt"

// DividendInput sizes a leveraged PropCo and tests whether it can pay a
// target dividend yield to its equity holders.
type DividendInput struct {
	NOI           float64   // total PropCo NOI
	CapRate       float64   // e.g. 0.065
	LTVs          []float64 // loan-to-value ratios
	InterestRates []float64
	// AmortizationSpread is added to the interest rate to get the debt
	// constant (about 1% for 25-year amortization).
	AmortizationSpread float64
	TargetYield        float64 // e.g. 0.08
	MinDSCR            float64 // e.g. 1.20
}

// DefaultDividendInput fills in the standard LTV / rate grid for a NOI.
func DefaultDividendInput(noi float64) DividendInput {
	return DividendInput{
		NOI:                noi,
		CapRate:            0.065,
		LTVs:               Range(0.50, 0.76, 0.05),
		InterestRates:      []float64{0.055, 0.060, 0.065, 0.070},
		AmortizationSpread: 0.01,
		TargetYield:        0.08,
		MinDSCR:            1.20,
	}
}

type DividendScenario struct {
	LTV          float64 `json:"ltv"`
	InterestRate float64 `json:"interest_rate"`
	DebtConstant float64 `json:"debt_constant"`
	EquityYield  float64 `json:"equity_yield"`
	PropCoValue  float64 `json:"propco_value"`
	Debt         float64 `json:"debt"`
	Equity       float64 `json:"equity"`
	DebtService  float64 `json:"debt_service"`
	CashToEquity float64 `json:"cash_to_equity"`
	DSCR         float64 `json:"dscr"`
	MeetsTarget  bool    `json:"meets_target"`
	Viable       bool    `json:"viable"`
}

type DividendAnalysis struct {
	NOI         float64            `json:"noi"`
	CapRate     float64            `json:"cap_rate"`
	PropCoValue float64            `json:"propco_value"`
	TargetYield float64            `json:"target_yield"`
	Scenarios   []DividendScenario `json:"scenarios"`
	Feasible    bool               `json:"feasible"`
}

// Viable returns the scenarios that clear both the DSCR floor and the target yield.
func (a DividendAnalysis) Viable() []DividendScenario {
	var out []DividendScenario
	for _, s := range a.Scenarios {
		if s.Viable {
			out = append(out, s)
		}
	}
	return out
}

// EquityYield is the levered cash yield: (cap - k*LTV) / (1 - LTV).
func EquityYield(capRate, debtConstant, ltv float64) (float64, error) {
	if ltv < 0 || ltv >= 1 {
		return 0, fmt.Errorf("ltv %v must be in [0, 1): %w", ltv, ErrInvalidInput)
	}
	return (capRate - debtConstant*ltv) / (1 - ltv), nil
}

// AnalyzeDividend evaluates every LTV x interest rate combination.
func AnalyzeDividend(in DividendInput) (DividendAnalysis, error) {
	value, err := CapitalizeNOI(in.NOI, in.CapRate)
	if err != nil {
		return DividendAnalysis{}, err
	}
	if len(in.LTVs) == 0 || len(in.InterestRates) == 0 {
		return DividendAnalysis{}, fmt.Errorf("empty LTV or interest rate grid: %w", ErrInvalidInput)
	}

	out := DividendAnalysis{
		NOI:         in.NOI,
		CapRate:     in.CapRate,
		PropCoValue: value,
		TargetYield: in.TargetYield,
	}

	for _, ltv := range in.LTVs {
		for _, rate := range in.InterestRates {
			k := rate + in.AmortizationSpread
			y, err := EquityYield(in.CapRate, k, ltv)
			if err != nil {
				return DividendAnalysis{}, err
			}
			s := DividendScenario{
				LTV:          ltv,
				InterestRate: rate,
				DebtConstant: k,
				EquityYield:  y,
				PropCoValue:  value,
				Debt:         value * ltv,
				Equity:       value * (1 - ltv),
			}
			s.DebtService = s.Debt * k
			s.CashToEquity = in.NOI - s.DebtService
			if s.DebtService > 0 {
				s.DSCR = in.NOI / s.DebtService
			}
			s.MeetsTarget = y >= in.TargetYield
			s.Viable = s.MeetsTarget && s.DSCR >= in.MinDSCR
			if s.Viable {
				out.Feasible = true
			}
			out.Scenarios = append(out.Scenarios, s)
		}
	}
	return out, nil
}
