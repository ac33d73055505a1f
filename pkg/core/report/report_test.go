package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sotp_valuation/pkg/core/valuation"
	"sotp_valuation/pkg/models"
)

func uhsBundle(t *testing.T) *Bundle {
	t.Helper()
	segs := []models.Segment{
		{Key: "behavioral", Name: "Behavioral Health", Revenue: 6895.051, ReportedEBITDA: 1567.165,
			OwnedBeds: 22465, LeasedBeds: 1656, ActualRent: 47.0},
		{Key: "acute", Name: "Acute Care", Revenue: 8922.327, ReportedEBITDA: 1208.477,
			OwnedBeds: 5190, LeasedBeds: 1246, ActualRent: 99.1},
	}
	norms, err := valuation.NormalizeSegments(segs, valuation.NormalizeOptions{})
	require.NoError(t, err)

	mkt := valuation.MarketInputs{NetDebt: 4378.5, SharesOutstanding: 64.98, SharePrice: 208.39}
	rows := valuation.RunScenarios(norms, valuation.DefaultScenarios(), mkt)

	base, err := valuation.DefaultScenarios().Get("base")
	require.NoError(t, err)
	table, err := valuation.TwoWayTable(norms, base, mkt,
		valuation.MultipleAxis("behavioral", 9, 10),
		valuation.CapRateAxis(0, 0.065))
	require.NoError(t, err)

	return &Bundle{
		Company:       "Universal Health Services",
		Ticker:        "UHS",
		FiscalYear:    2024,
		Normalization: norms,
		Consolidated:  valuation.Consolidate(norms),
		Scenarios:     rows,
		Sensitivity:   []valuation.SensitivityTable{table},
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$437.51", Dollars(437.514))
	assert.Equal(t, "$19,654.2M", Millions(19654.23))
	assert.Equal(t, "9.9%", Pct(0.099))
	assert.Equal(t, "9.5x", Multiple(9.5))
	assert.Equal(t, int64(43752), Cents(437.515))
	assert.Equal(t, "", Fixed(math.NaN(), 2))
	assert.Equal(t, "n/a", Dollars(math.NaN()))
}

func TestWriteScenarios(t *testing.T) {
	b := uhsBundle(t)
	b.Scenarios = append(b.Scenarios, valuation.ScenarioRow{Scenario: "broken", Error: "cap rate must be positive"})

	var buf bytes.Buffer
	require.NoError(t, WriteScenarios(&buf, b.Scenarios))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 5)

	assert.Equal(t, "Scenario", recs[0][0])
	assert.Equal(t, "base", recs[2][0])
	assert.Equal(t, "437.51", recs[2][7])
	assert.Equal(t, "cap rate must be positive", recs[4][10])
	assert.Equal(t, "", recs[4][7])
}

func TestWriteNormalization_TotalRow(t *testing.T) {
	b := uhsBundle(t)
	var buf bytes.Buffer
	require.NoError(t, WriteNormalization(&buf, b.Normalization))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "Total", recs[3][0])
	assert.Equal(t, "2775.6", recs[3][2])
}

func TestSensitivity_FailedCellsBlank(t *testing.T) {
	b := uhsBundle(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSensitivity(&buf, b.Sensitivity[0]))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "", recs[1][1], "zero cap rate cell")
	assert.NotEmpty(t, recs[1][2])

	// NaN cells become null rather than breaking the JSON encoder.
	data, err := json.Marshal(b)
	require.NoError(t, err)
	var decoded struct {
		Sensitivity []struct {
			Values [][]*float64 `json:"values"`
		} `json:"sensitivity"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Sensitivity, 1)
	assert.Nil(t, decoded.Sensitivity[0].Values[0][0])
	assert.NotNil(t, decoded.Sensitivity[0].Values[0][1])
}

func TestMarkdownAndHTML(t *testing.T) {
	b := uhsBundle(t)
	md := Markdown(b)
	assert.Contains(t, md, "# Universal Health Services (UHS)")
	assert.Contains(t, md, "| base |")
	assert.Contains(t, md, "$437.51")

	page, err := RenderHTML("UHS & Co", md)
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "<title>UHS &amp; Co</title>")
	assert.Contains(t, html, "<table>")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(html), "</html>"))
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteAll(filepath.Join(dir, "out"), uhsBundle(t))
	require.NoError(t, err)

	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	assert.Contains(t, names, "sotp_scenarios.csv")
	assert.Contains(t, names, "summary.json")
	assert.Contains(t, names, "report.html")
	assert.Contains(t, names, "sensitivity_1.csv")
	assert.NotContains(t, names, "dcf_projections.csv")

	data, err := os.ReadFile(filepath.Join(dir, "out", "summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ticker": "UHS"`)
}
