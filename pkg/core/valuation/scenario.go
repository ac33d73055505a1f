package valuation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

// ScenarioParameters is a named set of OpCo multiples (per segment) and a
// PropCo cap rate. Values are immutable: every With* method returns a copy,
// so overriding a grid point never touches the named scenario it came from.
type ScenarioParameters struct {
	name      string
	multiples map[string]float64
	capRate   float64
	capRates  map[string]float64 // per-segment cap rate overrides
}

// NewScenario builds a scenario. The multiples map is copied.
func NewScenario(name string, capRate float64, multiples map[string]float64) ScenarioParameters {
	return ScenarioParameters{
		name:      name,
		multiples: copyRates(multiples),
		capRate:   capRate,
	}
}

func (p ScenarioParameters) Name() string    { return p.name }
func (p ScenarioParameters) CapRate() float64 { return p.capRate }

// Multiple returns the OpCo multiple for a segment.
func (p ScenarioParameters) Multiple(segment string) (float64, bool) {
	m, ok := p.multiples[segment]
	return m, ok
}

// CapRateFor returns the segment override if present, else the scenario cap rate.
func (p ScenarioParameters) CapRateFor(segment string) float64 {
	if c, ok := p.capRates[segment]; ok {
		return c
	}
	return p.capRate
}

// Multiples returns a copy of the segment -> multiple table.
func (p ScenarioParameters) Multiples() map[string]float64 {
	return copyRates(p.multiples)
}

// CapRateOverrides returns a copy of the per-segment cap rates.
func (p ScenarioParameters) CapRateOverrides() map[string]float64 {
	return copyRates(p.capRates)
}

// Segments returns the segments with a multiple, sorted.
func (p ScenarioParameters) Segments() []string {
	keys := make([]string, 0, len(p.multiples))
	for k := range p.multiples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p ScenarioParameters) WithName(name string) ScenarioParameters {
	out := p.clone()
	out.name = name
	return out
}

func (p ScenarioParameters) WithMultiple(segment string, multiple float64) ScenarioParameters {
	out := p.clone()
	out.multiples[segment] = multiple
	return out
}

// WithCapRate replaces the scenario cap rate. Segment overrides are kept.
func (p ScenarioParameters) WithCapRate(capRate float64) ScenarioParameters {
	out := p.clone()
	out.capRate = capRate
	return out
}

func (p ScenarioParameters) WithSegmentCapRate(segment string, capRate float64) ScenarioParameters {
	out := p.clone()
	if out.capRates == nil {
		out.capRates = make(map[string]float64)
	}
	out.capRates[segment] = capRate
	return out
}

// Validate checks every multiple and cap rate without running a valuation.
func (p ScenarioParameters) Validate() error {
	if len(p.multiples) == 0 {
		return fmt.Errorf("scenario %s has no multiples: %w", p.name, ErrInvalidInput)
	}
	for _, seg := range p.Segments() {
		if _, err := ApplyMultiple(0, p.multiples[seg]); err != nil {
			return fmt.Errorf("scenario %s, segment %s: %w", p.name, seg, err)
		}
	}
	if _, err := CapitalizeNOI(0, p.capRate); err != nil {
		return fmt.Errorf("scenario %s: %w", p.name, err)
	}
	for seg, c := range p.capRates {
		if _, err := CapitalizeNOI(0, c); err != nil {
			return fmt.Errorf("scenario %s, segment %s: %w", p.name, seg, err)
		}
	}
	return nil
}

// Equal reports whether two scenarios carry the same rates (names ignored).
func (p ScenarioParameters) Equal(o ScenarioParameters) bool {
	if p.capRate != o.capRate || len(p.multiples) != len(o.multiples) || len(p.capRates) != len(o.capRates) {
		return false
	}
	for k, v := range p.multiples {
		if ov, ok := o.multiples[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range p.capRates {
		if ov, ok := o.capRates[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (p ScenarioParameters) clone() ScenarioParameters {
	c := ScenarioParameters{
		name:      p.name,
		multiples: copyRates(p.multiples),
		capRate:   p.capRate,
		capRates:  copyRates(p.capRates),
	}
	if c.multiples == nil {
		c.multiples = make(map[string]float64)
	}
	return c
}

func copyRates(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ScenarioConfig is the YAML/JSON form of a scenario.
type ScenarioConfig struct {
	Name      string             `yaml:"name" json:"name"`
	Multiples map[string]float64 `yaml:"multiples" json:"multiples"`
	CapRate   float64            `yaml:"cap_rate" json:"cap_rate"`
	CapRates  map[string]float64 `yaml:"cap_rates,omitempty" json:"cap_rates,omitempty"`
}

// Config converts the scenario back to its serializable form.
func (p ScenarioParameters) Config() ScenarioConfig {
	return ScenarioConfig{
		Name:      p.name,
		Multiples: p.Multiples(),
		CapRate:   p.capRate,
		CapRates:  p.CapRateOverrides(),
	}
}

func (p ScenarioParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Config())
}

func (c ScenarioConfig) Scenario() ScenarioParameters {
	p := NewScenario(c.Name, c.CapRate, c.Multiples)
	p.capRates = copyRates(c.CapRates)
	return p
}

// ScenarioSet is an ordered collection of named scenarios.
type ScenarioSet struct {
	scenarios []ScenarioParameters
}

// NewScenarioSet validates and orders scenarios. Names must be unique.
func NewScenarioSet(scenarios ...ScenarioParameters) (ScenarioSet, error) {
	seen := make(map[string]bool, len(scenarios))
	out := make([]ScenarioParameters, 0, len(scenarios))
	for _, s := range scenarios {
		if s.name == "" {
			return ScenarioSet{}, fmt.Errorf("scenario without a name: %w", ErrInvalidInput)
		}
		if seen[s.name] {
			return ScenarioSet{}, fmt.Errorf("duplicate scenario %s: %w", s.name, ErrInvalidInput)
		}
		seen[s.name] = true
		out = append(out, s.clone())
	}
	return ScenarioSet{scenarios: out}, nil
}

// DefaultScenarios returns the bear/base/bull table for a behavioral + acute
// care operator.
func DefaultScenarios() ScenarioSet {
	set, _ := NewScenarioSet(
		NewScenario("bear", 0.075, map[string]float64{"behavioral": 8.0, "acute": 6.0}),
		NewScenario("base", 0.065, map[string]float64{"behavioral": 9.5, "acute": 7.0}),
		NewScenario("bull", 0.055, map[string]float64{"behavioral": 11.0, "acute": 8.0}),
	)
	return set
}

// Get looks up a scenario by name.
func (s ScenarioSet) Get(name string) (ScenarioParameters, error) {
	for _, p := range s.scenarios {
		if p.name == name {
			return p.clone(), nil
		}
	}
	return ScenarioParameters{}, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
}

func (s ScenarioSet) Names() []string {
	names := make([]string, len(s.scenarios))
	for i, p := range s.scenarios {
		names[i] = p.name
	}
	return names
}

func (s ScenarioSet) All() []ScenarioParameters {
	out := make([]ScenarioParameters, len(s.scenarios))
	for i, p := range s.scenarios {
		out[i] = p.clone()
	}
	return out
}

func (s ScenarioSet) Len() int { return len(s.scenarios) }

// ParseScenarios reads a YAML document of the form
//
//	scenarios:
//	  - name: base
//	    cap_rate: 0.065
//	    multiples: {behavioral: 9.5, acute: 7.0}
func ParseScenarios(data []byte) (ScenarioSet, error) {
	var doc struct {
		Scenarios []ScenarioConfig `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ScenarioSet{}, fmt.Errorf("parse scenarios: %w", err)
	}
	if len(doc.Scenarios) == 0 {
		return ScenarioSet{}, fmt.Errorf("no scenarios defined: %w", ErrInvalidInput)
	}
	params := make([]ScenarioParameters, 0, len(doc.Scenarios))
	for _, c := range doc.Scenarios {
		params = append(params, c.Scenario())
	}
	return NewScenarioSet(params...)
}

// LoadScenarios reads a scenario table from a YAML file.
func LoadScenarios(path string) (ScenarioSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScenarioSet{}, fmt.Errorf("read scenarios: %w", err)
	}
	return ParseScenarios(data)
}

// ScenarioRow is one line of a scenario run. Exactly one of Result and Err is set.
type ScenarioRow struct {
	Scenario string           `json:"scenario"`
	Params   ScenarioConfig   `json:"params"`
	Result   *ValuationResult `json:"result,omitempty"`
	Err      error            `json:"-"`
	Error    string           `json:"error,omitempty"`
}

// RunScenarios values every scenario in the set. A failing scenario is
// reported on its row and does not stop the others.
func RunScenarios(norms []RentNormalization, set ScenarioSet, mkt MarketInputs) []ScenarioRow {
	rows := make([]ScenarioRow, 0, set.Len())
	for _, p := range set.scenarios {
		row := ScenarioRow{Scenario: p.name, Params: p.Config()}
		res, err := CalculateSOTP(norms, p, mkt)
		if err != nil {
			row.Err = err
			row.Error = err.Error()
		} else {
			row.Result = &res
		}
		rows = append(rows, row)
	}
	return rows
}
