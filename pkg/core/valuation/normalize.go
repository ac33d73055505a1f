package valuation

import (
	"fmt"
	"math"

	"sotp_valuation/pkg/models"
)

// RentNormalization splits a segment's reported EBITDA into an operating
// company (OpCo) piece and a property company (PropCo) piece.
//
// Flow: reported EBITDA + actual rent = EBITDAR. Rent paid per leased bed is
// imputed on owned beds; total rent = actual + imputed. OpCo EBITDA is EBITDAR
// less total rent and PropCo NOI equals total rent (triple-net lease).
type RentNormalization struct {
	SegmentKey     string  `json:"segment_key"`
	SegmentName    string  `json:"segment_name"`
	Revenue        float64 `json:"revenue"`
	ReportedEBITDA float64 `json:"reported_ebitda"`
	EBITDAMargin   float64 `json:"ebitda_margin"`
	ActualRent     float64 `json:"actual_rent"`
	OwnedBeds      int     `json:"owned_beds"`
	LeasedBeds     int     `json:"leased_beds"`

	EBITDAR          float64 `json:"ebitdar"`
	RentPerLeasedBed float64 `json:"rent_per_leased_bed"`
	ImputedRentOwned float64 `json:"imputed_rent_owned"`
	TotalRent        float64 `json:"total_rent"`
	OpCoEBITDA       float64 `json:"opco_ebitda"`
	PropCoNOI        float64 `json:"propco_noi"`

	// UsedDefaultRent is set when the segment had no leased beds and the
	// configured default market rent was applied instead.
	UsedDefaultRent bool `json:"used_default_rent,omitempty"`
}

// OwnedPct returns the owned share of the segment's beds.
func (n RentNormalization) OwnedPct() float64 {
	total := n.OwnedBeds + n.LeasedBeds
	if total == 0 {
		return 0
	}
	return float64(n.OwnedBeds) / float64(total)
}

// NormalizeOptions tunes the normalizer.
type NormalizeOptions struct {
	// DefaultRentPerBed is the market rent per bed per year (same units as
	// rent) applied when a segment has no leased beds. Zero disables the
	// fallback and such segments fail with ErrNoLeasedBeds.
	DefaultRentPerBed float64
}

// NormalizeSegment runs the EBITDA -> EBITDAR -> OpCo/PropCo flow for one segment.
func NormalizeSegment(seg models.Segment, opts NormalizeOptions) (RentNormalization, error) {
	if seg.OwnedBeds < 0 || seg.LeasedBeds < 0 {
		return RentNormalization{}, fmt.Errorf("segment %s: negative bed count: %w", seg.Key, ErrInvalidInput)
	}
	if seg.ActualRent < 0 || !isFinite(seg.ActualRent) || !isFinite(seg.ReportedEBITDA) {
		return RentNormalization{}, fmt.Errorf("segment %s: rent and EBITDA must be finite, rent >= 0: %w", seg.Key, ErrInvalidInput)
	}

	n := RentNormalization{
		SegmentKey:     seg.Key,
		SegmentName:    seg.Name,
		Revenue:        seg.Revenue,
		ReportedEBITDA: seg.ReportedEBITDA,
		EBITDAMargin:   seg.Margin(),
		ActualRent:     seg.ActualRent,
		OwnedBeds:      seg.OwnedBeds,
		LeasedBeds:     seg.LeasedBeds,
	}

	n.EBITDAR = seg.ReportedEBITDA + seg.ActualRent

	switch {
	case seg.LeasedBeds > 0:
		n.RentPerLeasedBed = seg.ActualRent / float64(seg.LeasedBeds)
	case opts.DefaultRentPerBed > 0:
		n.RentPerLeasedBed = opts.DefaultRentPerBed
		n.UsedDefaultRent = true
	default:
		return RentNormalization{}, fmt.Errorf("segment %s: rent per leased bed undefined: %w", seg.Key, ErrNoLeasedBeds)
	}

	n.ImputedRentOwned = n.RentPerLeasedBed * float64(seg.OwnedBeds)
	n.TotalRent = seg.ActualRent + n.ImputedRentOwned
	n.OpCoEBITDA = n.EBITDAR - n.TotalRent
	n.PropCoNOI = n.TotalRent

	return n, nil
}

// NormalizeSegments normalizes every segment, failing on the first bad one.
func NormalizeSegments(segs []models.Segment, opts NormalizeOptions) ([]RentNormalization, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("no segments to normalize: %w", ErrInvalidInput)
	}
	out := make([]RentNormalization, 0, len(segs))
	seen := make(map[string]bool, len(segs))
	for _, s := range segs {
		if s.Key == "" {
			return nil, fmt.Errorf("segment %q has no key: %w", s.Name, ErrInvalidInput)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("duplicate segment %s: %w", s.Key, ErrInvalidInput)
		}
		seen[s.Key] = true

		n, err := NormalizeSegment(s, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ConsolidatedNormalization sums the normalization across segments.
type ConsolidatedNormalization struct {
	Revenue        float64 `json:"revenue"`
	ReportedEBITDA float64 `json:"reported_ebitda"`
	ActualRent     float64 `json:"actual_rent"`
	EBITDAR        float64 `json:"ebitdar"`
	ImputedRent    float64 `json:"imputed_rent"`
	TotalRent      float64 `json:"total_rent"`
	OpCoEBITDA     float64 `json:"opco_ebitda"`
	PropCoNOI      float64 `json:"propco_noi"`
}

func Consolidate(norms []RentNormalization) ConsolidatedNormalization {
	var c ConsolidatedNormalization
	for _, n := range norms {
		c.Revenue += n.Revenue
		c.ReportedEBITDA += n.ReportedEBITDA
		c.ActualRent += n.ActualRent
		c.EBITDAR += n.EBITDAR
		c.ImputedRent += n.ImputedRentOwned
		c.TotalRent += n.TotalRent
		c.OpCoEBITDA += n.OpCoEBITDA
		c.PropCoNOI += n.PropCoNOI
	}
	return c
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
