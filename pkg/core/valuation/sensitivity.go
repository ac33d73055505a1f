package valuation

import (
	"fmt"
	"math"
)

type AxisKind string

const (
	AxisMultiple AxisKind = "multiple"
	AxisCapRate  AxisKind = "cap_rate"
)

// Axis is one dimension of a sensitivity sweep. Segment is required for
// multiple axes; for cap rate axes it is optional and, when set, overrides
// only that segment's cap rate.
type Axis struct {
	Kind    AxisKind  `json:"kind"`
	Segment string    `json:"segment,omitempty"`
	Values  []float64 `json:"values"`
}

func MultipleAxis(segment string, values ...float64) Axis {
	return Axis{Kind: AxisMultiple, Segment: segment, Values: values}
}

func CapRateAxis(values ...float64) Axis {
	return Axis{Kind: AxisCapRate, Values: values}
}

// Label names the axis for table headers, e.g. "behavioral multiple".
func (a Axis) Label() string {
	switch {
	case a.Kind == AxisMultiple:
		return a.Segment + " multiple"
	case a.Segment != "":
		return a.Segment + " cap rate"
	default:
		return "cap rate"
	}
}

func (a Axis) apply(p ScenarioParameters, v float64) ScenarioParameters {
	if a.Kind == AxisMultiple {
		return p.WithMultiple(a.Segment, v)
	}
	if a.Segment != "" {
		return p.WithSegmentCapRate(a.Segment, v)
	}
	return p.WithCapRate(v)
}

func (a Axis) validate(base ScenarioParameters) error {
	if len(a.Values) == 0 {
		return fmt.Errorf("axis %s has no values: %w", a.Label(), ErrInvalidInput)
	}
	switch a.Kind {
	case AxisMultiple:
		if _, ok := base.Multiple(a.Segment); !ok {
			return fmt.Errorf("axis %s: %w", a.Label(), ErrUnknownSegment)
		}
	case AxisCapRate:
		if a.Segment != "" {
			if _, ok := base.Multiple(a.Segment); !ok {
				return fmt.Errorf("axis %s: %w", a.Label(), ErrUnknownSegment)
			}
		}
	default:
		return fmt.Errorf("axis kind %q: %w", a.Kind, ErrInvalidInput)
	}
	return nil
}

// SweepCell is one point of a sweep. Coords line up with the axes passed to Sweep.
type SweepCell struct {
	Coords []float64        `json:"coords"`
	Result *ValuationResult `json:"result,omitempty"`
	Err    error            `json:"-"`
	Error  string           `json:"error,omitempty"`
}

// PerShare returns the cell's per-share value, NaN if the cell failed.
func (c SweepCell) PerShare() float64 {
	if c.Result == nil {
		return math.NaN()
	}
	return c.Result.PerShare
}

// Sweep values the Cartesian product of the axes. Each cell applies its
// coordinates to a copy of base; the last axis varies fastest. Invalid cell
// parameters (e.g. a zero cap rate) fail that cell only.
func Sweep(norms []RentNormalization, base ScenarioParameters, mkt MarketInputs, axes ...Axis) ([]SweepCell, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("sweep needs at least one axis: %w", ErrInvalidInput)
	}
	lens := make([]int, len(axes))
	for i, a := range axes {
		if err := a.validate(base); err != nil {
			return nil, err
		}
		lens[i] = len(a.Values)
	}

	var cells []SweepCell
	cartesian(lens, func(idx []int) {
		p := base
		coords := make([]float64, len(axes))
		for i, a := range axes {
			coords[i] = a.Values[idx[i]]
			p = a.apply(p, coords[i])
		}
		cell := SweepCell{Coords: coords}
		res, err := CalculateSOTP(norms, p, mkt)
		if err != nil {
			cell.Err = err
			cell.Error = err.Error()
		} else {
			cell.Result = &res
		}
		cells = append(cells, cell)
	})
	return cells, nil
}

// cartesian calls fn for every index combination, last dimension fastest.
// The idx slice is reused between calls.
func cartesian(lens []int, fn func(idx []int)) {
	for _, n := range lens {
		if n == 0 {
			return
		}
	}
	idx := make([]int, len(lens))
	for {
		fn(idx)
		d := len(lens) - 1
		for d >= 0 {
			idx[d]++
			if idx[d] < lens[d] {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			return
		}
	}
}

// Range returns start, start+step, ... up to but excluding stop. Values are
// computed as start + i*step and rounded to 1e-9 so that repeated addition
// does not drift (7.0 + 0.5*k stays exact for table lookups).
func Range(start, stop, step float64) []float64 {
	if step == 0 || math.IsNaN(step) || (step > 0 && start >= stop) || (step < 0 && start <= stop) {
		return nil
	}
	n := int(math.Ceil(round9((stop - start) / step)))
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, round9(start+float64(i)*step))
	}
	return out
}

func round9(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

// SensitivityTable is a two-way per-share grid.
type SensitivityTable struct {
	Scenario string      `json:"scenario"`
	RowLabel string      `json:"row_label"`
	ColLabel string      `json:"col_label"`
	Rows     []float64   `json:"rows"`
	Cols     []float64   `json:"cols"`
	Values   [][]float64 `json:"values"` // per share, NaN where the cell failed
}

// TwoWayTable runs a two-axis sweep and folds it into a row x column grid.
func TwoWayTable(norms []RentNormalization, base ScenarioParameters, mkt MarketInputs, row, col Axis) (SensitivityTable, error) {
	cells, err := Sweep(norms, base, mkt, row, col)
	if err != nil {
		return SensitivityTable{}, err
	}
	t := SensitivityTable{
		Scenario: base.Name(),
		RowLabel: row.Label(),
		ColLabel: col.Label(),
		Rows:     row.Values,
		Cols:     col.Values,
		Values:   make([][]float64, len(row.Values)),
	}
	for i := range row.Values {
		t.Values[i] = make([]float64, len(col.Values))
		for j := range col.Values {
			t.Values[i][j] = cells[i*len(col.Values)+j].PerShare()
		}
	}
	return t, nil
}

// StandardTables returns the three classic tables for a behavioral + acute
// operator around the base scenario: behavioral multiple x cap rate, acute
// multiple x cap rate and behavioral x acute multiple.
func StandardTables(norms []RentNormalization, base ScenarioParameters, mkt MarketInputs) ([]SensitivityTable, error) {
	behavioral := MultipleAxis("behavioral", Range(7.0, 12.5, 0.5)...)
	acute := MultipleAxis("acute", Range(5.0, 9.5, 0.5)...)
	capRates := CapRateAxis(Range(0.050, 0.085, 0.005)...)

	pairs := [][2]Axis{
		{behavioral, capRates},
		{acute, capRates},
		{behavioral, acute},
	}
	tables := make([]SensitivityTable, 0, len(pairs))
	for _, p := range pairs {
		t, err := TwoWayTable(norms, base, mkt, p[0], p[1])
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}
