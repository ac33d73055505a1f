package valuation

import "fmt"

// WACCInput parameters for calculating Cost of Capital.
//
// Leverage is taken from DebtToEquityRatio when it is set. Otherwise the
// market values EquityValue and DebtValue give the weights, and the beta is
// treated as already levered.
type WACCInput struct {
	Beta              float64 // unlevered when DebtToEquityRatio > 0, else observed
	RiskFreeRate      float64
	MarketRiskPremium float64
	PreTaxCostOfDebt  float64
	TaxRate           float64

	DebtToEquityRatio float64 // target leverage (D/E)

	EquityValue float64 // market cap
	DebtValue   float64
}

// WACCResult holds the calculated rates
type WACCResult struct {
	LeveredBeta  float64 `json:"levered_beta"`
	CostOfEquity float64 `json:"cost_of_equity"`
	CostOfDebt   float64 `json:"cost_of_debt"` // after tax
	WACC         float64 `json:"wacc"`
	WeightDebt   float64 `json:"weight_debt"`
	WeightEquity float64 `json:"weight_equity"`
}

// DefaultWACCInput: Rf 4.10%, beta 1.30, ERP 4.65%, 21% tax, with market
// weights from the current equity value and net debt.
func DefaultWACCInput(mkt MarketInputs) WACCInput {
	return WACCInput{
		Beta:              1.30,
		RiskFreeRate:      0.041,
		MarketRiskPremium: 0.0465,
		PreTaxCostOfDebt:  0.0413,
		TaxRate:           0.21,
		EquityValue:       mkt.SharePrice * mkt.SharesOutstanding,
		DebtValue:         mkt.NetDebt,
	}
}

// CalculateWACC computes the Weighted Average Cost of Capital using CAPM,
// re-levering beta with the Hamada equation for a target D/E.
func CalculateWACC(input WACCInput) (WACCResult, error) {
	var wd, we, beta float64

	switch {
	case input.DebtToEquityRatio > 0:
		// BetaL = BetaU * (1 + (1-t)*D/E); Wd = x/(1+x), We = 1/(1+x)
		beta = input.Beta * (1 + (1-input.TaxRate)*input.DebtToEquityRatio)
		wd = input.DebtToEquityRatio / (1 + input.DebtToEquityRatio)
		we = 1.0 / (1 + input.DebtToEquityRatio)
	case input.EquityValue > 0 && input.DebtValue >= 0:
		beta = input.Beta
		v := input.EquityValue + input.DebtValue
		wd = input.DebtValue / v
		we = input.EquityValue / v
	case input.DebtToEquityRatio == 0 && input.EquityValue == 0 && input.DebtValue == 0:
		beta = input.Beta
		we = 1
	default:
		return WACCResult{}, fmt.Errorf("capital weights: %w", ErrInvalidInput)
	}

	// Ke = Rf + BetaL * ERP
	ke := input.RiskFreeRate + beta*input.MarketRiskPremium
	kd := input.PreTaxCostOfDebt * (1 - input.TaxRate)

	return WACCResult{
		LeveredBeta:  beta,
		CostOfEquity: ke,
		CostOfDebt:   kd,
		WACC:         ke*we + kd*wd,
		WeightDebt:   wd,
		WeightEquity: we,
	}, nil
}
