package valuation

import (
	"fmt"
	"math"

	"sotp_valuation/pkg/models"
)

// Method keys used in the football field.
const (
	MethodSOTP       = "sotp"
	MethodDCF        = "dcf"
	MethodLBO        = "lbo"
	MethodComps      = "comps"
	MethodPrecedents = "precedents"
	MethodWeighted   = "weighted"
)

var methodLabels = map[string]string{
	MethodSOTP:       "SOTP (4-Part)",
	MethodDCF:        "DCF (10-Year)",
	MethodLBO:        "LBO Analysis",
	MethodComps:      "Comparable Companies",
	MethodPrecedents: "Precedent Transactions",
	MethodWeighted:   "Weighted Average",
}

// MethodLabel returns the display name of a method key.
func MethodLabel(key string) string {
	if l, ok := methodLabels[key]; ok {
		return l
	}
	return key
}

// DefaultMethodWeights: SOTP is primary, comps the least relevant.
func DefaultMethodWeights() map[string]float64 {
	return map[string]float64{
		MethodSOTP:       0.30,
		MethodDCF:        0.25,
		MethodLBO:        0.20,
		MethodComps:      0.10,
		MethodPrecedents: 0.15,
	}
}

// MethodRange is one football field bar, in per-share value.
type MethodRange struct {
	Method string  `json:"method"`
	Label  string  `json:"label"`
	Low    float64 `json:"low"`
	Base   float64 `json:"base"`
	High   float64 `json:"high"`
	Weight float64 `json:"weight"`
}

type PriceBand struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type FootballField struct {
	Methods      []MethodRange `json:"methods"`
	Weighted     MethodRange   `json:"weighted"`
	CurrentPrice float64       `json:"current_price"`
	OfferBand    *PriceBand    `json:"offer_band,omitempty"`
	// BaseUpside is the weighted base value against the current price.
	BaseUpside float64 `json:"base_upside"`
}

// Method looks up a bar by key.
func (f FootballField) Method(key string) (MethodRange, bool) {
	for _, m := range f.Methods {
		if m.Method == key {
			return m, true
		}
	}
	return MethodRange{}, false
}

// Rows returns the method bars followed by the weighted average row.
func (f FootballField) Rows() []MethodRange {
	return append(append([]MethodRange(nil), f.Methods...), f.Weighted)
}

// BuildFootballField blends the method ranges by weight. Weights must be >= 0
// and sum to 1 within 1e-6.
func BuildFootballField(methods []MethodRange, currentPrice float64, offer *PriceBand) (FootballField, error) {
	if len(methods) == 0 {
		return FootballField{}, fmt.Errorf("no methods: %w", ErrInvalidInput)
	}
	var sum float64
	w := MethodRange{Method: MethodWeighted, Label: MethodLabel(MethodWeighted), Weight: 1}
	out := FootballField{CurrentPrice: currentPrice, OfferBand: offer}
	for _, m := range methods {
		if m.Weight < 0 || !isFinite(m.Weight) {
			return FootballField{}, fmt.Errorf("method %s weight %v: %w", m.Method, m.Weight, ErrInvalidWeights)
		}
		if m.Label == "" {
			m.Label = MethodLabel(m.Method)
		}
		sum += m.Weight
		w.Low += m.Low * m.Weight
		w.Base += m.Base * m.Weight
		w.High += m.High * m.Weight
		out.Methods = append(out.Methods, m)
	}
	if math.Abs(sum-1) > 1e-6 {
		return FootballField{}, fmt.Errorf("method weights sum to %.6f: %w", sum, ErrInvalidWeights)
	}
	out.Weighted = w
	if currentPrice > 0 {
		out.BaseUpside = (w.Base - currentPrice) / currentPrice
	}
	return out, nil
}

// ============================================================================
// Full-suite run
// ============================================================================

// MasterValuationInput aggregates all inputs needed for the full suite of models
type MasterValuationInput struct {
	Segments     []RentNormalization
	Scenarios    ScenarioSet
	Market       MarketInputs
	Consolidated models.Consolidated

	DCF DCFAssumptions
	// DCFWACCs are the low / base / high discount rates (high rate = low value).
	DCFWACCs [3]float64

	LBO             LBOAssumptions
	LBOExitMultiple float64
	// LBOTargetIRRs are the low / base / high return hurdles (high IRR = low price).
	LBOTargetIRRs [3]float64
	LBOPriceRange [2]float64

	Comps      MultipleRange
	Precedents MultipleRange
	// Peers, when set, replace Comps and Precedents with peer quartiles.
	Peers      []PeerComparable

	Weights   map[string]float64
	OfferBand *PriceBand
}

// DefaultMasterInput wires the default assumptions around a filing.
func DefaultMasterInput(f *models.Filing, norms []RentNormalization) MasterValuationInput {
	return MasterValuationInput{
		Segments:        norms,
		Scenarios:       DefaultScenarios(),
		Market:          MarketInputsFromFiling(f),
		Consolidated:    f.Consolidated,
		DCF:             DefaultDCFAssumptions(),
		DCFWACCs:        [3]float64{0.095, 0.09, 0.085},
		LBO:             DefaultLBOAssumptions(),
		LBOExitMultiple: 9.0,
		LBOTargetIRRs:   [3]float64{0.25, 0.17, 0.12},
		LBOPriceRange:   [2]float64{50, 1000},
		Comps:           DefaultCompsRange,
		Precedents:      DefaultPrecedentsRange,
		Weights:         DefaultMethodWeights(),
	}
}

// UseCAPMWACC discounts the DCF at the CAPM WACC of the market inputs, with
// the low / high band at +/- 50bp.
func (in *MasterValuationInput) UseCAPMWACC() (WACCResult, error) {
	w, err := CalculateWACC(DefaultWACCInput(in.Market))
	if err != nil {
		return WACCResult{}, err
	}
	in.DCF.WACC = w.WACC
	in.DCFWACCs = [3]float64{w.WACC + 0.005, w.WACC, w.WACC - 0.005}
	return w, nil
}

// SuiteResult carries every model output behind the football field.
type SuiteResult struct {
	Scenarios     []ScenarioRow `json:"scenarios"`
	DCF           DCFResult     `json:"dcf"`
	LBO           LBOReturns    `json:"lbo"`
	FootballField FootballField `json:"football_field"`
}

// RunAllValuations runs SOTP, DCF, LBO, comps and precedents and blends them.
func RunAllValuations(input MasterValuationInput) (SuiteResult, error) {
	var out SuiteResult
	weights := input.Weights
	if weights == nil {
		weights = DefaultMethodWeights()
	}

	// 1. SOTP: bear / base / bull
	out.Scenarios = RunScenarios(input.Segments, input.Scenarios, input.Market)
	sotp, err := MethodFromScenarios(out.Scenarios, "bear", "base", "bull")
	if err != nil {
		return out, err
	}

	// 2. DCF across the WACC band
	dcfIn := DCFInput{Base: input.Consolidated, Assumptions: input.DCF, Market: input.Market}
	var dcfVals [3]float64
	for i, w := range input.DCFWACCs {
		in := dcfIn
		in.Assumptions.WACC = w
		r, err := CalculateDCF(in)
		if err != nil {
			return out, fmt.Errorf("dcf at wacc %.4f: %w", w, err)
		}
		dcfVals[i] = r.PerShare
		if i == 1 {
			out.DCF = r
		}
	}

	// 3. LBO: max price at each IRR hurdle
	lboIn := LBOInput{
		Base:         input.Consolidated,
		Market:       input.Market,
		ExitMultiple: input.LBOExitMultiple,
		Assumptions:  input.LBO,
	}
	var lboVals [3]float64
	for i, target := range input.LBOTargetIRRs {
		r, err := ReverseLBO(lboIn, target, input.LBOPriceRange[0], input.LBOPriceRange[1])
		if err != nil {
			return out, fmt.Errorf("reverse lbo at %.0f%% IRR: %w", target*100, err)
		}
		lboVals[i] = r.Transaction.EquityPurchase / input.Market.SharesOutstanding
		if i == 1 {
			out.LBO = r
		}
	}

	// 4/5. Trading comps and precedent transactions on consolidated EBITDA
	target := MetricInput{
		Revenue:   input.Consolidated.Revenue,
		EBITDA:    input.Consolidated.EBITDA,
		NetIncome: input.Consolidated.NetIncome,
		NetDebt:   input.Market.NetDebt,
		SharesOut: input.Market.SharesOutstanding,
	}
	compsRange, precRange := input.Comps, input.Precedents
	if len(input.Peers) > 0 {
		if compsRange, precRange, err = PeerRanges(target, input.Peers, compsRange, precRange); err != nil {
			return out, err
		}
	}
	comps, err := ImpliedPerShare(target, compsRange)
	if err != nil {
		return out, err
	}
	precedents, err := ImpliedPerShare(target, precRange)
	if err != nil {
		return out, err
	}

	methods := []MethodRange{
		withWeight(sotp, weights),
		withWeight(MethodRange{Method: MethodDCF, Low: dcfVals[0], Base: dcfVals[1], High: dcfVals[2]}, weights),
		withWeight(MethodRange{Method: MethodLBO, Low: lboVals[0], Base: lboVals[1], High: lboVals[2]}, weights),
		withWeight(MethodRange{Method: MethodComps, Low: comps.Low, Base: comps.Base, High: comps.High}, weights),
		withWeight(MethodRange{Method: MethodPrecedents, Low: precedents.Low, Base: precedents.Base, High: precedents.High}, weights),
	}

	out.FootballField, err = BuildFootballField(methods, input.Market.SharePrice, input.OfferBand)
	return out, err
}

// MethodFromScenarios turns three scenario rows into a SOTP bar.
func MethodFromScenarios(rows []ScenarioRow, low, base, high string) (MethodRange, error) {
	vals := make(map[string]float64, len(rows))
	for _, r := range rows {
		if r.Result != nil {
			vals[r.Scenario] = r.Result.PerShare
		}
	}
	m := MethodRange{Method: MethodSOTP, Label: MethodLabel(MethodSOTP)}
	for _, pick := range []struct {
		name string
		dst  *float64
	}{{low, &m.Low}, {base, &m.Base}, {high, &m.High}} {
		v, ok := vals[pick.name]
		if !ok {
			return MethodRange{}, fmt.Errorf("no SOTP result for %q: %w", pick.name, ErrUnknownScenario)
		}
		*pick.dst = v
	}
	return m, nil
}

func withWeight(m MethodRange, weights map[string]float64) MethodRange {
	m.Weight = weights[m.Method]
	if m.Label == "" {
		m.Label = MethodLabel(m.Method)
	}
	return m
}
