package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v2"

	"sotp_valuation/pkg/models"
)

// FieldRef points one canonical field at a jsonpath expression in a raw
// extraction dump, or at a literal value when the dump does not carry it.
type FieldRef struct {
	Path     string      `yaml:"path,omitempty"`
	Value    interface{} `yaml:"value,omitempty"`
	Scale    string      `yaml:"scale,omitempty"`    // key into FieldMap.Scales
	Optional bool        `yaml:"optional,omitempty"` // absent is not an error
}

// SegmentMap maps the fields of one segment.
type SegmentMap struct {
	Key    string              `yaml:"key"`
	Fields map[string]FieldRef `yaml:"fields"`
}

// FieldMap describes how to build a Filing from an arbitrary JSON document.
// Field keys are dotted canonical paths ("balance_sheet.total_debt").
//
//	scales:
//	  money: 1.0e-6     # dollars -> millions
//	fields:
//	  company: {path: "$.company_info.legal_name"}
//	  balance_sheet.cash: {path: "$.balance_sheet['2024'].cash", scale: money}
//	segments:
//	  - key: behavioral
//	    fields:
//	      revenue: {path: "$.segment_financials.behavioral_health['2024'].revenue", scale: money}
type FieldMap struct {
	Scales   map[string]float64  `yaml:"scales"`
	Fields   map[string]FieldRef `yaml:"fields"`
	Segments []SegmentMap        `yaml:"segments"`
}

var errNotFound = errors.New("not found")

// ParseFieldMap decodes a YAML field map.
func ParseFieldMap(data []byte) (FieldMap, error) {
	var fm FieldMap
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return FieldMap{}, fmt.Errorf("parse field map: %w", err)
	}
	if len(fm.Fields) == 0 && len(fm.Segments) == 0 {
		return FieldMap{}, fmt.Errorf("parse field map: no fields defined")
	}
	return fm, nil
}

// LoadFieldMap reads a YAML field map from disk.
func LoadFieldMap(path string) (FieldMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FieldMap{}, fmt.Errorf("read field map %s: %w", path, err)
	}
	return ParseFieldMap(data)
}

// ExtractFiling evaluates every field of fm against doc (a value produced by
// json.Unmarshal into interface{}) and decodes the result through the same
// canonical schema as LoadFiling. Each mapped field's source expression is
// recorded in Filing.Sources.
func ExtractFiling(doc interface{}, fm FieldMap) (*models.Filing, error) {
	canonical := map[string]interface{}{}
	sources := map[string]string{}
	var errs []error

	for _, key := range sortedKeys(fm.Fields) {
		ref := fm.Fields[key]
		v, err := fm.resolve(ref, doc)
		if err != nil {
			if errors.Is(err, errNotFound) {
				if !ref.Optional {
					errs = append(errs, &MissingFieldError{Path: key, Source: ref.Path})
				}
				continue
			}
			errs = append(errs, fmt.Errorf("field %s: %w", key, err))
			continue
		}
		setNested(canonical, key, v)
		if ref.Path != "" {
			sources[key] = ref.Path
		}
	}

	segs := make([]interface{}, 0, len(fm.Segments))
	for _, sm := range fm.Segments {
		seg := map[string]interface{}{"key": sm.Key}
		for _, field := range sortedKeys(sm.Fields) {
			ref := sm.Fields[field]
			name := "segments." + sm.Key + "." + field
			v, err := fm.resolve(ref, doc)
			if err != nil {
				if errors.Is(err, errNotFound) {
					if !ref.Optional {
						errs = append(errs, &MissingFieldError{Path: name, Source: ref.Path})
					}
					continue
				}
				errs = append(errs, fmt.Errorf("field %s: %w", name, err))
				continue
			}
			seg[field] = v
			if ref.Path != "" {
				sources[name] = ref.Path
			}
		}
		segs = append(segs, seg)
	}
	if len(segs) > 0 {
		canonical["segments"] = segs
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	canonical["sources"] = sources

	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("encode extracted filing: %w", err)
	}
	return ParseFiling(data)
}

// ExtractFilingFile loads a raw JSON dump and a YAML field map and extracts
// a Filing from them.
func ExtractFilingFile(dataPath, mapPath string) (*models.Filing, error) {
	fm, err := LoadFieldMap(mapPath)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("read extraction %s: %w", dataPath, err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode extraction %s: %w", dataPath, err)
	}
	f, err := ExtractFiling(doc, fm)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", dataPath, err)
	}
	return f, nil
}

func (m FieldMap) resolve(ref FieldRef, doc interface{}) (interface{}, error) {
	var v interface{}
	switch {
	case ref.Path != "":
		eval, err := jsonpath.New(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("bad jsonpath %q: %w", ref.Path, err)
		}
		got, err := eval(context.Background(), doc)
		if err != nil {
			// unknown keys and out-of-range indexes both surface here
			return nil, errNotFound
		}
		// Wildcard and filter expressions return a list; keep the first.
		if list, ok := got.([]interface{}); ok {
			if len(list) == 0 {
				return nil, errNotFound
			}
			got = list[0]
		}
		v = got
	case ref.Value != nil:
		v = ref.Value
	}
	if v == nil {
		return nil, errNotFound
	}

	if ref.Scale == "" {
		return v, nil
	}
	factor, ok := m.Scales[ref.Scale]
	if !ok {
		return nil, fmt.Errorf("unknown scale %q", ref.Scale)
	}
	n, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("value %v is not numeric", v)
	}
	return n * factor, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func setNested(m map[string]interface{}, dotted string, v interface{}) {
	parts := strings.Split(dotted, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func sortedKeys(m map[string]FieldRef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
