package valuation

import (
	"fmt"
	"math"

	"sotp_valuation/pkg/models"
)

// MarketInputs are the capital structure figures that bridge enterprise value
// to a per-share value.
type MarketInputs struct {
	NetDebt           float64 `json:"net_debt"`
	SharesOutstanding float64 `json:"shares_outstanding"` // Millions
	SharePrice        float64 `json:"share_price"`
}

// MarketInputsFromFiling reads net debt, shares and price from a filing.
func MarketInputsFromFiling(f *models.Filing) MarketInputs {
	return MarketInputs{
		NetDebt:           f.BalanceSheet.NetDebt(),
		SharesOutstanding: f.Capital.SharesOutstanding,
		SharePrice:        f.Market.SharePrice,
	}
}

func (m MarketInputs) validate() error {
	if !(m.SharesOutstanding > 0) || math.IsInf(m.SharesOutstanding, 0) {
		return fmt.Errorf("shares %v: %w", m.SharesOutstanding, ErrInvalidShares)
	}
	if !(m.SharePrice > 0) || math.IsInf(m.SharePrice, 0) {
		return fmt.Errorf("price %v: %w", m.SharePrice, ErrInvalidPrice)
	}
	if !isFinite(m.NetDebt) {
		return fmt.Errorf("net debt %v: %w", m.NetDebt, ErrInvalidInput)
	}
	return nil
}

// CurrentEV is the market-implied enterprise value (market cap + net debt).
func (m MarketInputs) CurrentEV() float64 {
	return m.SharePrice*m.SharesOutstanding + m.NetDebt
}

type ComponentKind string

const (
	OpCo   ComponentKind = "opco"
	PropCo ComponentKind = "propco"
)

// ComponentValue is one segment x {OpCo, PropCo} piece of the SOTP.
// Rate is the EV/EBITDA multiple for OpCo and the cap rate for PropCo.
type ComponentValue struct {
	Segment string        `json:"segment"`
	Kind    ComponentKind `json:"kind"`
	Metric  float64       `json:"metric"` // OpCo EBITDA or PropCo NOI
	Rate    float64       `json:"rate"`
	Value   float64       `json:"value"`
}

// ValuationResult is the SOTP output for one scenario.
type ValuationResult struct {
	Scenario   string           `json:"scenario"`
	Components []ComponentValue `json:"components"`

	OpCoValue   float64 `json:"opco_value"`
	PropCoValue float64 `json:"propco_value"`
	TotalEV     float64 `json:"total_ev"`

	NetDebt           float64 `json:"net_debt"`
	EquityValue       float64 `json:"equity_value"`
	SharesOutstanding float64 `json:"shares_outstanding"`
	PerShare          float64 `json:"per_share"`
	CurrentPrice      float64 `json:"current_price"`
	Upside            float64 `json:"upside"`

	OpCoMix   float64 `json:"opco_mix"`
	PropCoMix float64 `json:"propco_mix"`
	CurrentEV float64 `json:"current_ev"`
	EVUpside  float64 `json:"ev_upside"`
}

// Component returns the value for a segment and kind.
func (r *ValuationResult) Component(segment string, kind ComponentKind) (ComponentValue, bool) {
	for _, c := range r.Components {
		if c.Segment == segment && c.Kind == kind {
			return c, true
		}
	}
	return ComponentValue{}, false
}

// ComponentSum adds up every component value.
func (r *ValuationResult) ComponentSum() float64 {
	var sum float64
	for _, c := range r.Components {
		sum += c.Value
	}
	return sum
}

// ApplyMultiple values an OpCo: EBITDA x multiple.
func ApplyMultiple(ebitda, multiple float64) (float64, error) {
	if multiple < 0 || !isFinite(multiple) {
		return 0, fmt.Errorf("multiple %v: %w", multiple, ErrInvalidMultiple)
	}
	return ebitda * multiple, nil
}

// CapitalizeNOI values a PropCo: NOI / cap rate.
func CapitalizeNOI(noi, capRate float64) (float64, error) {
	if !(capRate > 0 && capRate < 1) {
		return 0, fmt.Errorf("cap rate %v: %w", capRate, ErrInvalidCapRate)
	}
	return noi / capRate, nil
}

// CalculateSOTP values every normalized segment under the scenario and bridges
// the total to equity and per-share value.
func CalculateSOTP(norms []RentNormalization, params ScenarioParameters, mkt MarketInputs) (ValuationResult, error) {
	if len(norms) == 0 {
		return ValuationResult{}, fmt.Errorf("no segments: %w", ErrInvalidInput)
	}
	if err := mkt.validate(); err != nil {
		return ValuationResult{}, err
	}

	res := ValuationResult{
		Scenario:          params.Name(),
		Components:        make([]ComponentValue, 0, 2*len(norms)),
		NetDebt:           mkt.NetDebt,
		SharesOutstanding: mkt.SharesOutstanding,
		CurrentPrice:      mkt.SharePrice,
	}

	for _, n := range norms {
		multiple, ok := params.Multiple(n.SegmentKey)
		if !ok {
			return ValuationResult{}, fmt.Errorf("scenario %s has no multiple for %s: %w", params.Name(), n.SegmentKey, ErrUnknownSegment)
		}
		opco, err := ApplyMultiple(n.OpCoEBITDA, multiple)
		if err != nil {
			return ValuationResult{}, fmt.Errorf("scenario %s, segment %s: %w", params.Name(), n.SegmentKey, err)
		}

		capRate := params.CapRateFor(n.SegmentKey)
		propco, err := CapitalizeNOI(n.PropCoNOI, capRate)
		if err != nil {
			return ValuationResult{}, fmt.Errorf("scenario %s, segment %s: %w", params.Name(), n.SegmentKey, err)
		}

		res.Components = append(res.Components,
			ComponentValue{Segment: n.SegmentKey, Kind: OpCo, Metric: n.OpCoEBITDA, Rate: multiple, Value: opco},
			ComponentValue{Segment: n.SegmentKey, Kind: PropCo, Metric: n.PropCoNOI, Rate: capRate, Value: propco},
		)
		res.OpCoValue += opco
		res.PropCoValue += propco
	}

	res.TotalEV = res.ComponentSum()
	res.EquityValue = res.TotalEV - mkt.NetDebt
	res.PerShare = res.EquityValue / mkt.SharesOutstanding
	res.Upside = (res.PerShare - mkt.SharePrice) / mkt.SharePrice

	if res.TotalEV != 0 {
		res.OpCoMix = res.OpCoValue / res.TotalEV
		res.PropCoMix = res.PropCoValue / res.TotalEV
	}
	res.CurrentEV = mkt.CurrentEV()
	if res.CurrentEV != 0 {
		res.EVUpside = (res.TotalEV - res.CurrentEV) / res.CurrentEV
	}

	return res, nil
}

// PerShareValue bridges an equity value to a per-share figure.
func PerShareValue(equity, shares float64) (float64, error) {
	if !(shares > 0) {
		return 0, fmt.Errorf("shares %v: %w", shares, ErrInvalidShares)
	}
	return equity / shares, nil
}

// Upside returns (value - price) / price.
func Upside(value, price float64) (float64, error) {
	if !(price > 0) {
		return 0, fmt.Errorf("price %v: %w", price, ErrInvalidPrice)
	}
	return (value - price) / price, nil
}
