package npi

import (
	"regexp"
	"strings"

	"sotp_valuation/pkg/models"
)

// Match is the registry result for one facility.
type Match struct {
	Facility   models.Facility `json:"facility"`
	NPI        string          `json:"npi"`
	DBA        string          `json:"dba"`
	Taxonomy   string          `json:"primary_taxonomy"`
	Phone      string          `json:"phone"`
	Address    string          `json:"address"`
	CCN        string          `json:"ccn"`
	Notes      string          `json:"notes"`
	Candidates int             `json:"candidate_count"`
	Query      string          `json:"query,omitempty"`
}

func (m Match) Found() bool {
	return m.NPI != "" && m.NPI != NotFound
}

// NameVariations returns the search names tried for a facility, most
// specific first: the full name, the name with "Hospital", "Behavioral
// Health" or "Center" removed, then the first word alone.
func NameVariations(name string) []string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}

	add(name)
	for _, drop := range dropWords {
		add(drop.ReplaceAllString(name, ""))
	}
	add(strings.Fields(name)[0])
	return out
}

// dropWords are removed case-insensitively for the shorter search names.
var dropWords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)` + regexp.QuoteMeta("Hospital")),
	regexp.MustCompile(`(?i)` + regexp.QuoteMeta("Behavioral Health")),
	regexp.MustCompile(`(?i)` + regexp.QuoteMeta("Center")),
}

// BestMatch picks the candidate whose organization or DBA name contains
// the facility name; failing that, one whose name shares either of the
// facility's first two words; failing that, the first candidate.
// candidates must be non-empty.
func BestMatch(facility string, candidates []Provider) Provider {
	target := strings.ToUpper(strings.TrimSpace(facility))

	for _, p := range candidates {
		for _, n := range p.names() {
			if strings.Contains(n, target) {
				return p
			}
		}
	}

	words := strings.Fields(target)
	if len(words) > 2 {
		words = words[:2]
	}
	for _, p := range candidates {
		org := strings.ToUpper(p.Basic.OrganizationName)
		for _, w := range words {
			if strings.Contains(org, w) {
				return p
			}
		}
	}
	return candidates[0]
}

func (p Provider) names() []string {
	out := []string{strings.ToUpper(p.Basic.OrganizationName)}
	for _, o := range p.OtherNames {
		if o.OrganizationName != "" {
			out = append(out, strings.ToUpper(o.OrganizationName))
		}
	}
	return out
}

// DBA returns the doing-business-as name, or the legal name if none is listed.
func (p Provider) DBA() string {
	for _, o := range p.OtherNames {
		if strings.EqualFold(o.Type, "DBA") || strings.Contains(strings.ToLower(o.Type), "doing business as") || o.Code == "3" {
			if o.OrganizationName != "" {
				return o.OrganizationName
			}
		}
	}
	return p.Basic.OrganizationName
}

// PrimaryTaxonomy returns the taxonomy flagged primary, else the first.
func (p Provider) PrimaryTaxonomy() string {
	for _, t := range p.Taxonomies {
		if t.Primary {
			return t.Desc
		}
	}
	if len(p.Taxonomies) > 0 {
		return p.Taxonomies[0].Desc
	}
	return ""
}

// Location returns the practice location address, if listed.
func (p Provider) Location() (Address, bool) {
	for _, a := range p.Addresses {
		if strings.EqualFold(a.Purpose, "LOCATION") {
			return a, true
		}
	}
	return Address{}, false
}

func (a Address) String() string {
	street := strings.TrimSpace(a.Address1 + " " + a.Address2)
	zip := a.PostalCode
	if len(zip) > 5 {
		zip = zip[:5]
	}
	parts := []string{}
	for _, s := range []string{street, a.City, strings.TrimSpace(a.State + " " + zip)} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Details extracts the reported fields from a registry entry.
func Details(p Provider) (npi, dba, taxonomy, phone, address string) {
	npi = p.Number.String()
	dba = p.DBA()
	taxonomy = p.PrimaryTaxonomy()
	if loc, ok := p.Location(); ok {
		phone = loc.Phone
		address = loc.String()
	}
	return
}
