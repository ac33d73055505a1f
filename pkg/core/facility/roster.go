// Package facility reads facility rosters and rolls them up into the
// owned/leased bed split the rent normalization needs.
package facility

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"sotp_valuation/pkg/models"
)

const (
	Owned  = "owned"
	Leased = "leased"
)

// ErrBadRoster is wrapped by every roster parse error.
var ErrBadRoster = errors.New("invalid facility roster")

// Header aliases seen across roster exports.
var columnAliases = map[string][]string{
	"name":      {"facility", "facility name", "facility_name", "name"},
	"city":      {"city"},
	"state":     {"state", "state / region", "state/region"},
	"location":  {"location"},
	"country":   {"country"},
	"segment":   {"segment"},
	"beds":      {"beds", "number of beds", "licensed beds"},
	"ownership": {"ownership", "property ownership"},
}

// LoadRoster reads a roster CSV. defaultSegment is used for rows when the
// file has no Segment column.
func LoadRoster(path, defaultSegment string) ([]models.Facility, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	out, err := ReadRoster(f, defaultSegment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ReadRoster parses roster rows. Rows with a blank facility name are
// skipped. A "Location" column ("Tampa Florida") is split into city and
// state when City/State columns are absent.
func ReadRoster(r io.Reader, defaultSegment string) ([]models.Facility, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadRoster, err)
	}
	cols := indexColumns(header)
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("%w: no facility name column", ErrBadRoster)
	}
	if _, ok := cols["beds"]; !ok {
		return nil, fmt.Errorf("%w: no beds column", ErrBadRoster)
	}
	if _, ok := cols["ownership"]; !ok {
		return nil, fmt.Errorf("%w: no ownership column", ErrBadRoster)
	}

	var out []models.Facility
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRoster, line, err)
		}
		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		fac := models.Facility{
			Name:    get("name"),
			City:    get("city"),
			State:   get("state"),
			Country: get("country"),
			Segment: get("segment"),
		}
		if fac.Name == "" {
			continue
		}
		if fac.Segment == "" {
			fac.Segment = defaultSegment
		}
		if fac.City == "" && fac.State == "" {
			fac.City, fac.State = ParseLocation(get("location"))
		}
		if ab, ok := stateAbbrev[fac.State]; ok {
			fac.State = ab
		}

		beds, err := strconv.Atoi(strings.ReplaceAll(get("beds"), ",", ""))
		if err != nil || beds < 0 {
			return nil, fmt.Errorf("%w: line %d: bad bed count %q", ErrBadRoster, line, get("beds"))
		}
		fac.Beds = beds

		own, err := NormalizeOwnership(get("ownership"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRoster, line, err)
		}
		fac.Ownership = own

		out = append(out, fac)
	}
	return out, nil
}

// NormalizeOwnership maps "Owned", "OWNED", "leased" etc. to Owned or Leased.
func NormalizeOwnership(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owned", "own", "o":
		return Owned, nil
	case "leased", "lease", "l":
		return Leased, nil
	}
	return "", fmt.Errorf("unknown ownership %q", s)
}

func indexColumns(header []string) map[string]int {
	cols := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for key, aliases := range columnAliases {
			if _, seen := cols[key]; seen {
				continue
			}
			for _, a := range aliases {
				if h == a {
					cols[key] = i
				}
			}
		}
	}
	return cols
}

var stateAbbrev = map[string]string{
	"Alabama": "AL", "Alaska": "AK", "Arizona": "AZ", "Arkansas": "AR",
	"California": "CA", "Colorado": "CO", "Connecticut": "CT", "Delaware": "DE",
	"Florida": "FL", "Georgia": "GA", "Hawaii": "HI", "Idaho": "ID",
	"Illinois": "IL", "Indiana": "IN", "Iowa": "IA", "Kansas": "KS",
	"Kentucky": "KY", "Louisiana": "LA", "Maine": "ME", "Maryland": "MD",
	"Massachusetts": "MA", "Michigan": "MI", "Minnesota": "MN", "Mississippi": "MS",
	"Missouri": "MO", "Montana": "MT", "Nebraska": "NE", "Nevada": "NV",
	"New Hampshire": "NH", "New Jersey": "NJ", "New Mexico": "NM", "New York": "NY",
	"North Carolina": "NC", "North Dakota": "ND", "Ohio": "OH", "Oklahoma": "OK",
	"Oregon": "OR", "Pennsylvania": "PA", "Rhode Island": "RI", "South Carolina": "SC",
	"South Dakota": "SD", "Tennessee": "TN", "Texas": "TX", "Utah": "UT",
	"Vermont": "VT", "Virginia": "VA", "Washington": "WA", "West Virginia": "WV",
	"Wisconsin": "WI", "Wyoming": "WY", "D.C.": "DC", "Puerto Rico": "PR",
}

// ParseLocation splits "Las Vegas Nevada" or "Las Vegas, NV" into city and
// two-letter state. Unrecognized input is returned as the city.
func ParseLocation(loc string) (city, state string) {
	loc = strings.TrimSpace(loc)
	if i := strings.LastIndex(loc, ","); i >= 0 {
		tail := strings.TrimSpace(loc[i+1:])
		if len(tail) == 2 {
			return strings.TrimSpace(loc[:i]), strings.ToUpper(tail)
		}
		if ab, ok := stateAbbrev[tail]; ok {
			return strings.TrimSpace(loc[:i]), ab
		}
	}
	// Longest matching suffix wins, so "West Virginia" beats "Virginia".
	best := ""
	for name := range stateAbbrev {
		if strings.HasSuffix(loc, " "+name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return loc, ""
	}
	return strings.TrimSpace(strings.TrimSuffix(loc, best)), stateAbbrev[best]
}
