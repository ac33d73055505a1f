package valuation

import (
	"testing"

	"sotp_valuation/pkg/models"
)

// =============================================================================
// UHS FY2024 SEGMENT DATA
// =============================================================================
// Source: Universal Health Services 10-K FY2024, Note 15 (segments) and
// Item 2 (properties). $ millions, share counts in millions.

func uhsSegments() []models.Segment {
	return []models.Segment{
		{
			Key:            "behavioral",
			Name:           "Behavioral Health",
			Revenue:        6895.051,
			ReportedEBITDA: 1567.165,
			EBITDAMargin:   0.227,
			Facilities:     324,
			OwnedBeds:      22465,
			LeasedBeds:     1656,
			ActualRent:     47.0,
		},
		{
			Key:            "acute",
			Name:           "Acute Care",
			Revenue:        8922.327,
			ReportedEBITDA: 1208.477,
			EBITDAMargin:   0.135,
			Facilities:     28,
			OwnedBeds:      5190,
			LeasedBeds:     1246,
			ActualRent:     99.1,
		},
	}
}

func uhsMarket() MarketInputs {
	return MarketInputs{NetDebt: 4378.5, SharesOutstanding: 64.98, SharePrice: 208.39}
}

func uhsConsolidated() models.Consolidated {
	return models.Consolidated{
		Revenue:           15827.9,
		EBITDA:            2775.6,
		Depreciation:      584.8,
		EBIT:              1681.8,
		InterestExpense:   186.1,
		TaxExpense:        353.7,
		NetIncome:         1142.1,
		OperatingCashFlow: 2067,
		Capex:             640,
		FreeCashFlow:      1427,
	}
}

func uhsNormalized(t *testing.T) []RentNormalization {
	t.Helper()
	norms, err := NormalizeSegments(uhsSegments(), NormalizeOptions{})
	if err != nil {
		t.Fatalf("NormalizeSegments: %v", err)
	}
	return norms
}

func mustScenario(t *testing.T, name string) ScenarioParameters {
	t.Helper()
	p, err := DefaultScenarios().Get(name)
	if err != nil {
		t.Fatalf("scenario %s: %v", name, err)
	}
	return p
}
