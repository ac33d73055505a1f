package valuation

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

// MetricInput holds the target company's current metrics (LTM)
type MetricInput struct {
	Revenue   float64
	EBITDA    float64
	NetIncome float64
	NetDebt   float64
	SharesOut float64
}

// PeerComparable represents a comparable company or transaction
type PeerComparable struct {
	Name          string  `json:"name" yaml:"name"`
	EVRevenue     float64 `json:"ev_revenue,omitempty" yaml:"ev_revenue"`
	EVEBITDA      float64 `json:"ev_ebitda,omitempty" yaml:"ev_ebitda"`
	PERatio       float64 `json:"pe_ratio,omitempty" yaml:"pe_ratio"`
	IsTransaction bool    `json:"is_transaction,omitempty" yaml:"is_transaction"` // precedent deal rather than trading comp
}

// MultipleRange is a low / base / high multiple.
type MultipleRange struct {
	Low  float64 `json:"low" yaml:"low"`
	Base float64 `json:"base" yaml:"base"`
	High float64 `json:"high" yaml:"high"`
}

// Trading comps and precedent transaction ranges for hospital operators.
var (
	DefaultCompsRange      = MultipleRange{Low: 6.0, Base: 7.0, High: 8.0}
	DefaultPrecedentsRange = MultipleRange{Low: 8.0, Base: 10.0, High: 12.0}
)

// RelativeValuationResult holds the ranges derived from peer multiples.
// Each range is 25th percentile / median / 75th percentile.
type RelativeValuationResult struct {
	Peers            int           `json:"peers"`
	EVEBITDA         MultipleRange `json:"ev_ebitda"`
	EVRevenue        MultipleRange `json:"ev_revenue"`
	PE               MultipleRange `json:"pe"`
	ImpliedEVEBITDA  MultipleRange `json:"implied_ev_ebitda"`
	ImpliedEVRevenue MultipleRange `json:"implied_ev_revenue"`
	PerShareEBITDA   MultipleRange `json:"per_share_ebitda"`
	PerShareRevenue  MultipleRange `json:"per_share_revenue"`
	PerSharePE       MultipleRange `json:"per_share_pe"`
}

// CalculateComps performs Comparable Companies Analysis
func CalculateComps(target MetricInput, peers []PeerComparable) (RelativeValuationResult, error) {
	return calculateMultiples(target, peers, false)
}

// CalculateTransactions performs Precedent Transaction Analysis.
// Deal multiples carry a control premium, so they run higher.
func CalculateTransactions(target MetricInput, peers []PeerComparable) (RelativeValuationResult, error) {
	return calculateMultiples(target, peers, true)
}

func calculateMultiples(target MetricInput, peers []PeerComparable, onlyTransactions bool) (RelativeValuationResult, error) {
	if !(target.SharesOut > 0) {
		return RelativeValuationResult{}, fmt.Errorf("shares %v: %w", target.SharesOut, ErrInvalidShares)
	}

	var revMults, ebitdaMults, peMults []float64
	res := RelativeValuationResult{}
	for _, p := range peers {
		if p.IsTransaction != onlyTransactions {
			continue
		}
		res.Peers++
		if p.EVRevenue > 0 {
			revMults = append(revMults, p.EVRevenue)
		}
		if p.EVEBITDA > 0 {
			ebitdaMults = append(ebitdaMults, p.EVEBITDA)
		}
		if p.PERatio > 0 {
			peMults = append(peMults, p.PERatio)
		}
	}
	if len(ebitdaMults) == 0 {
		return RelativeValuationResult{}, fmt.Errorf("no peers with EV/EBITDA: %w", ErrInvalidInput)
	}

	res.EVEBITDA = quartiles(ebitdaMults)
	res.EVRevenue = quartiles(revMults)
	res.PE = quartiles(peMults)

	res.ImpliedEVEBITDA = res.EVEBITDA.scale(target.EBITDA)
	res.ImpliedEVRevenue = res.EVRevenue.scale(target.Revenue)
	res.PerShareEBITDA = res.ImpliedEVEBITDA.toPerShare(target.NetDebt, target.SharesOut)
	res.PerShareRevenue = res.ImpliedEVRevenue.toPerShare(target.NetDebt, target.SharesOut)
	// P/E gives equity value directly
	res.PerSharePE = res.PE.scale(target.NetIncome / target.SharesOut)

	return res, nil
}

// ImpliedPerShare applies a fixed EV/EBITDA range to the target.
func ImpliedPerShare(target MetricInput, r MultipleRange) (MultipleRange, error) {
	if !(target.SharesOut > 0) {
		return MultipleRange{}, fmt.Errorf("shares %v: %w", target.SharesOut, ErrInvalidShares)
	}
	return r.scale(target.EBITDA).toPerShare(target.NetDebt, target.SharesOut), nil
}

func (r MultipleRange) scale(metric float64) MultipleRange {
	return MultipleRange{Low: r.Low * metric, Base: r.Base * metric, High: r.High * metric}
}

func (r MultipleRange) toPerShare(netDebt, shares float64) MultipleRange {
	return MultipleRange{
		Low:  (r.Low - netDebt) / shares,
		Base: (r.Base - netDebt) / shares,
		High: (r.High - netDebt) / shares,
	}
}

// quartiles returns the 25th, 50th and 75th percentiles with linear
// interpolation between closest ranks. Empty input gives a zero range.
func quartiles(vals []float64) MultipleRange {
	if len(vals) == 0 {
		return MultipleRange{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return MultipleRange{
		Low:  percentile(sorted, 0.25),
		Base: percentile(sorted, 0.50),
		High: percentile(sorted, 0.75),
	}
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// ParsePeers reads a peer list:
//
//	peers:
//	  - {name: HCA, ev_ebitda: 8.1, ev_revenue: 1.4, pe_ratio: 15.2}
//	  - {name: Acadia / LifePoint, ev_ebitda: 11.0, is_transaction: true}
func ParsePeers(data []byte) ([]PeerComparable, error) {
	var doc struct {
		Peers []PeerComparable `yaml:"peers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse peers: %w", err)
	}
	if len(doc.Peers) == 0 {
		return nil, fmt.Errorf("no peers defined: %w", ErrInvalidInput)
	}
	return doc.Peers, nil
}

func LoadPeers(path string) ([]PeerComparable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read peers: %w", err)
	}
	return ParsePeers(data)
}

// PeerRanges derives the comps and precedents EV/EBITDA ranges from peers.
// A side with no EV/EBITDA peers keeps its fallback range.
func PeerRanges(target MetricInput, peers []PeerComparable, comps, precedents MultipleRange) (MultipleRange, MultipleRange, error) {
	if r, err := CalculateComps(target, peers); err == nil {
		comps = r.EVEBITDA
	} else if !errors.Is(err, ErrInvalidInput) {
		return comps, precedents, err
	}
	if r, err := CalculateTransactions(target, peers); err == nil {
		precedents = r.EVEBITDA
	} else if !errors.Is(err, ErrInvalidInput) {
		return comps, precedents, err
	}
	return comps, precedents, nil
}
