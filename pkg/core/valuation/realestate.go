package valuation

import (
	"fmt"
	"math"

	"sotp_valuation/pkg/models"
)

// AllocationWeights blends the three allocation keys. Weights must be >= 0
// and sum to 1.
type AllocationWeights struct {
	Beds    float64 `json:"beds" yaml:"beds"`
	Revenue float64 `json:"revenue" yaml:"revenue"`
	EBITDA  float64 `json:"ebitda" yaml:"ebitda"`
}

// EqualWeights is the simple average of the three keys.
func EqualWeights() AllocationWeights {
	return AllocationWeights{Beds: 1.0 / 3, Revenue: 1.0 / 3, EBITDA: 1.0 / 3}
}

func (w AllocationWeights) Validate() error {
	if w.Beds < 0 || w.Revenue < 0 || w.EBITDA < 0 {
		return fmt.Errorf("allocation weights %+v: %w", w, ErrInvalidWeights)
	}
	if math.Abs(w.Beds+w.Revenue+w.EBITDA-1) > 1e-6 {
		return fmt.Errorf("allocation weights sum to %.6f: %w", w.Beds+w.Revenue+w.EBITDA, ErrInvalidWeights)
	}
	return nil
}

// SegmentAllocation is one segment's share of book real estate.
type SegmentAllocation struct {
	Segment     string  `json:"segment"`
	BedShare    float64 `json:"bed_share"`
	RevShare    float64 `json:"revenue_share"`
	EBITDAShare float64 `json:"ebitda_share"`

	ByBeds    float64 `json:"by_beds"`
	ByRevenue float64 `json:"by_revenue"`
	ByEBITDA  float64 `json:"by_ebitda"`
	Blended   float64 `json:"blended"`
}

type RealEstateAllocation struct {
	NetPPE   float64             `json:"net_ppe"`
	Weights  AllocationWeights   `json:"weights"`
	Segments []SegmentAllocation `json:"segments"`
}

// AllocateRealEstate splits net PP&E across segments by bed, revenue and
// EBITDA share, then blends the three splits with the given weights.
func AllocateRealEstate(segs []models.Segment, netPPE float64, w AllocationWeights) (RealEstateAllocation, error) {
	if err := w.Validate(); err != nil {
		return RealEstateAllocation{}, err
	}
	if len(segs) == 0 {
		return RealEstateAllocation{}, fmt.Errorf("no segments: %w", ErrInvalidInput)
	}

	var beds, revenue, ebitda float64
	for _, s := range segs {
		beds += float64(s.TotalBeds())
		revenue += s.Revenue
		ebitda += s.ReportedEBITDA
	}
	if beds == 0 || revenue == 0 || ebitda == 0 {
		return RealEstateAllocation{}, fmt.Errorf("zero total beds, revenue or EBITDA: %w", ErrInvalidInput)
	}

	out := RealEstateAllocation{NetPPE: netPPE, Weights: w}
	for _, s := range segs {
		a := SegmentAllocation{
			Segment:     s.Key,
			BedShare:    float64(s.TotalBeds()) / beds,
			RevShare:    s.Revenue / revenue,
			EBITDAShare: s.ReportedEBITDA / ebitda,
		}
		a.ByBeds = a.BedShare * netPPE
		a.ByRevenue = a.RevShare * netPPE
		a.ByEBITDA = a.EBITDAShare * netPPE
		a.Blended = w.Beds*a.ByBeds + w.Revenue*a.ByRevenue + w.EBITDA*a.ByEBITDA
		out.Segments = append(out.Segments, a)
	}
	return out, nil
}

// Total sums the blended allocation; equals NetPPE up to rounding.
func (r RealEstateAllocation) Total() float64 {
	var t float64
	for _, s := range r.Segments {
		t += s.Blended
	}
	return t
}

// Reconciliation compares implied real estate value (PropCo NOI capitalized
// at capRate) against book net PP&E.
type Reconciliation struct {
	CapRate      float64            `json:"cap_rate"`
	ImpliedValue float64            `json:"implied_value"`
	BySegment    map[string]float64 `json:"by_segment"`
	NetPPE       float64            `json:"net_ppe"`
	Difference   float64            `json:"difference"` // implied / PP&E - 1
}

func ReconcileRealEstate(norms []RentNormalization, netPPE, capRate float64) (Reconciliation, error) {
	if netPPE <= 0 {
		return Reconciliation{}, fmt.Errorf("net PP&E %v: %w", netPPE, ErrInvalidInput)
	}
	rec := Reconciliation{CapRate: capRate, NetPPE: netPPE, BySegment: make(map[string]float64, len(norms))}
	for _, n := range norms {
		v, err := CapitalizeNOI(n.PropCoNOI, capRate)
		if err != nil {
			return Reconciliation{}, err
		}
		rec.BySegment[n.SegmentKey] = v
		rec.ImpliedValue += v
	}
	rec.Difference = rec.ImpliedValue/netPPE - 1
	return rec, nil
}
