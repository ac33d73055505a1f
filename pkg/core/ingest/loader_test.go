package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalFiling = `{
  "company": "Universal Health Services, Inc.",
  "ticker": "UHS",
  "fiscal_year": 2024,
  "segments": [
    {"key": "behavioral", "name": "Behavioral Health", "revenue": 6895.051,
     "reported_ebitda": 1567.165, "ebitda_margin": 0.227, "facilities": 324,
     "owned_beds": 22465, "leased_beds": 1656, "actual_rent": 47.0},
    {"key": "acute", "name": "Acute Care", "revenue": 8922.327,
     "reported_ebitda": 1208.477, "ebitda_margin": 0.135, "facilities": 28,
     "owned_beds": 5190, "leased_beds": 1246, "actual_rent": 99.1}
  ],
  "balance_sheet": {"total_debt": 4504.5, "cash": 126.0, "net_ppe": 6572.225},
  "capital_structure": {"shares_outstanding": 64.98},
  "market": {"share_price": 208.39},
  "consolidated": {"revenue": 15827.9, "ebitda": 2775.6}
}`

func TestParseFiling(t *testing.T) {
	f, err := ParseFiling([]byte(canonicalFiling))
	require.NoError(t, err)

	assert.Equal(t, "UHS", f.Ticker)
	assert.Equal(t, 2024, f.FiscalYear)
	assert.Equal(t, "USD millions", f.Units)
	require.Len(t, f.Segments, 2)
	assert.Equal(t, []string{"behavioral", "acute"}, f.SegmentKeys())
	assert.Equal(t, 1656, f.Segments[0].LeasedBeds)
	assert.InDelta(t, 4378.5, f.BalanceSheet.NetDebt(), 1e-9)
	assert.InDelta(t, 208.39, f.Market.SharePrice, 1e-9)
}

func TestParseFiling_ZeroIsNotMissing(t *testing.T) {
	doc := strings.Replace(canonicalFiling, `"leased_beds": 1246, "actual_rent": 99.1`, `"leased_beds": 0, "actual_rent": 0`, 1)
	f, err := ParseFiling([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Segments[1].LeasedBeds)
	assert.Zero(t, f.Segments[1].ActualRent)
}

func TestParseFiling_MissingFieldsNamed(t *testing.T) {
	doc := strings.Replace(canonicalFiling, `"actual_rent": 99.1`, `"facilities_note": "x"`, 1)
	doc = strings.Replace(doc, `"market": {"share_price": 208.39},`, ``, 1)

	_, err := ParseFiling([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))

	var mf *MissingFieldError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, "segments[1].actual_rent", mf.Path)
	assert.Contains(t, err.Error(), "market")
}

func TestParseFiling_NoSegments(t *testing.T) {
	_, err := ParseFiling([]byte(`{"company": "X", "ticker": "X", "fiscal_year": 2024,
		"balance_sheet": {"total_debt": 1, "cash": 0},
		"capital_structure": {"shares_outstanding": 1},
		"market": {"share_price": 1}}`))
	var mf *MissingFieldError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, "segments", mf.Path)
}

func TestLoadFiling_HJSON(t *testing.T) {
	doc := `
# FY2024 data set, $ millions
{
  company: Universal Health Services, Inc.
  ticker: UHS
  fiscal_year: 2024
  segments: [
    {
      key: behavioral
      revenue: 6895.051
      reported_ebitda: 1567.165
      owned_beds: 22465
      leased_beds: 1656
      actual_rent: 47.0
    }
  ]
  balance_sheet: { total_debt: 4504.5, cash: 126.0, net_debt: 4378.5 }
  capital_structure: { shares_outstanding: 64.98 }
  market: { share_price: 208.39 }
}`
	path := filepath.Join(t.TempDir(), "uhs.hjson")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	f, err := LoadFiling(path)
	require.NoError(t, err)
	assert.Equal(t, "Universal Health Services, Inc.", f.Company)
	assert.Equal(t, "behavioral", f.Segments[0].Name, "name defaults to key")
	require.NotNil(t, f.BalanceSheet.StatedNetDebt)
	assert.InDelta(t, 4378.5, *f.BalanceSheet.StatedNetDebt, 1e-9)
}

func TestLoadFiling_NotFound(t *testing.T) {
	_, err := LoadFiling(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
