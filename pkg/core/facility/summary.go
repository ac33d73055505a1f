package facility

import (
	"fmt"
	"sort"

	"sotp_valuation/pkg/models"
)

// Size buckets by licensed beds.
const (
	LargeBeds  = 300
	MediumBeds = 150
)

// SegmentSummary rolls up one segment's facilities.
type SegmentSummary struct {
	Segment          string `json:"segment"`
	Facilities       int    `json:"facilities"`
	OwnedFacilities  int    `json:"owned_facilities"`
	LeasedFacilities int    `json:"leased_facilities"`
	Beds             int    `json:"beds"`
	OwnedBeds        int    `json:"owned_beds"`
	LeasedBeds       int    `json:"leased_beds"`
	Large            int    `json:"large"`
	Medium           int    `json:"medium"`
	Small            int    `json:"small"`
}

func (s SegmentSummary) OwnedBedPct() float64 {
	if s.Beds == 0 {
		return 0
	}
	return float64(s.OwnedBeds) / float64(s.Beds)
}

func (s SegmentSummary) AvgBeds() float64 {
	if s.Facilities == 0 {
		return 0
	}
	return float64(s.Beds) / float64(s.Facilities)
}

func (s *SegmentSummary) add(f models.Facility) {
	s.Facilities++
	s.Beds += f.Beds
	if f.Ownership == Owned {
		s.OwnedFacilities++
		s.OwnedBeds += f.Beds
	} else {
		s.LeasedFacilities++
		s.LeasedBeds += f.Beds
	}
	switch {
	case f.Beds >= LargeBeds:
		s.Large++
	case f.Beds >= MediumBeds:
		s.Medium++
	default:
		s.Small++
	}
}

type StateSummary struct {
	State      string `json:"state"`
	Facilities int    `json:"facilities"`
	Beds       int    `json:"beds"`
}

// Summary is the portfolio roll-up of a roster.
type Summary struct {
	Segments []SegmentSummary `json:"segments"` // first-seen order
	States   []StateSummary   `json:"states"`   // most beds first
	Total    SegmentSummary   `json:"total"`
}

// Segment returns the roll-up for one segment.
func (s Summary) Segment(key string) (SegmentSummary, bool) {
	for _, seg := range s.Segments {
		if seg.Segment == key {
			return seg, true
		}
	}
	return SegmentSummary{}, false
}

// Summarize rolls facilities up by segment and by state.
func Summarize(facilities []models.Facility) Summary {
	sum := Summary{Total: SegmentSummary{Segment: "total"}}
	segIdx := map[string]int{}
	stateIdx := map[string]int{}

	for _, f := range facilities {
		i, ok := segIdx[f.Segment]
		if !ok {
			i = len(sum.Segments)
			segIdx[f.Segment] = i
			sum.Segments = append(sum.Segments, SegmentSummary{Segment: f.Segment})
		}
		sum.Segments[i].add(f)
		sum.Total.add(f)

		state := f.State
		if state == "" {
			state = "unknown"
		}
		j, ok := stateIdx[state]
		if !ok {
			j = len(sum.States)
			stateIdx[state] = j
			sum.States = append(sum.States, StateSummary{State: state})
		}
		sum.States[j].Facilities++
		sum.States[j].Beds += f.Beds
	}

	sort.SliceStable(sum.States, func(a, b int) bool {
		if sum.States[a].Beds != sum.States[b].Beds {
			return sum.States[a].Beds > sum.States[b].Beds
		}
		return sum.States[a].State < sum.States[b].State
	})
	return sum
}

// Largest returns the n facilities with the most beds.
func Largest(facilities []models.Facility, n int) []models.Facility {
	out := append([]models.Facility(nil), facilities...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Beds > out[j].Beds })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ApplyBeds returns a copy of segs with owned/leased beds and facility
// counts replaced by the roster roll-up. Every roster segment must exist in
// segs; filing segments absent from the roster are left unchanged.
func (s Summary) ApplyBeds(segs []models.Segment) ([]models.Segment, error) {
	out := append([]models.Segment(nil), segs...)
	for _, rs := range s.Segments {
		found := false
		for i := range out {
			if out[i].Key == rs.Segment {
				out[i].OwnedBeds = rs.OwnedBeds
				out[i].LeasedBeds = rs.LeasedBeds
				out[i].Facilities = rs.Facilities
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("roster segment %q not in filing", rs.Segment)
		}
	}
	return out, nil
}
