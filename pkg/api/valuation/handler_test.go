package valuation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreVal "sotp_valuation/pkg/core/valuation"
	"sotp_valuation/pkg/models"
)

func uhsFiling() *models.Filing {
	return &models.Filing{
		Company:    "Universal Health Services, Inc.",
		Ticker:     "UHS",
		FiscalYear: 2024,
		Segments: []models.Segment{
			{Key: "behavioral", Name: "Behavioral Health", Revenue: 6895.051, ReportedEBITDA: 1567.165,
				OwnedBeds: 22465, LeasedBeds: 1656, ActualRent: 47.0},
			{Key: "acute", Name: "Acute Care", Revenue: 8922.327, ReportedEBITDA: 1208.477,
				OwnedBeds: 5190, LeasedBeds: 1246, ActualRent: 99.1},
		},
		BalanceSheet: models.BalanceSheet{TotalDebt: 4504.5, Cash: 126.0},
		Capital:      models.CapitalStructure{SharesOutstanding: 64.98},
		Market:       models.MarketData{SharePrice: 208.39},
		Consolidated: models.Consolidated{
			Revenue: 15827.9, EBITDA: 2775.6, Depreciation: 584.8, EBIT: 1681.8,
			InterestExpense: 186.1, TaxExpense: 353.7, NetIncome: 1142.1,
			OperatingCashFlow: 2067, Capex: 640, FreeCashFlow: 1427,
		},
	}
}

func testServer(t *testing.T, configure ...func(*Handler)) *httptest.Server {
	t.Helper()
	h, err := NewHandler(uhsFiling(), coreVal.DefaultScenarios(), coreVal.NormalizeOptions{})
	require.NoError(t, err)
	for _, c := range configure {
		c(h)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHandleScenarios(t *testing.T) {
	srv := testServer(t)

	var out ScenariosResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/valuation/scenarios", &out))
	require.Len(t, out.Scenarios, 3)
	assert.Equal(t, "UHS", out.Ticker)
	assert.Equal(t, "base", out.Scenarios[1].Scenario)
	assert.InDelta(t, 437.514, out.Scenarios[1].Result.PerShare, 0.01)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/valuation/scenarios?multiple.behavioral=10.5", &out))
	require.Len(t, out.Scenarios, 4)
	custom := out.Scenarios[3]
	assert.Equal(t, "custom", custom.Scenario)
	assert.Equal(t, 10.5, custom.Params.Multiples["behavioral"])
	assert.Equal(t, 0.065, custom.Params.CapRate)
	assert.Greater(t, custom.Result.PerShare, out.Scenarios[1].Result.PerShare)
}

func TestHandleScenarios_BadQuery(t *testing.T) {
	srv := testServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/valuation/scenarios?multiple.surgical=8", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/valuation/scenarios?scenario=stress&cap_rate=0.07", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/valuation/scenarios?cap_rate=abc", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/valuation/scenarios?cap_rate=0", nil))

	resp, err := http.Post(srv.URL+"/api/valuation/scenarios", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleNormalization(t *testing.T) {
	srv := testServer(t)
	var out NormalizationResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/valuation/normalization", &out))
	require.Len(t, out.Segments, 2)
	assert.InDelta(t, out.Consolidated.TotalRent, out.Consolidated.PropCoNOI, 1e-9)
	assert.InDelta(t, 2775.642, out.Consolidated.ReportedEBITDA, 1e-6)
}

func TestHandleSensitivity(t *testing.T) {
	srv := testServer(t)
	var out struct {
		Scenario string `json:"scenario"`
		Tables   []struct {
			RowLabel string       `json:"row_label"`
			Values   [][]*float64 `json:"values"`
		} `json:"tables"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/valuation/sensitivity", &out))
	assert.Equal(t, "base", out.Scenario)
	assert.Len(t, out.Tables, 3)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/valuation/sensitivity?scenario=stress", nil))
}

func TestHandleFootballField(t *testing.T) {
	srv := testServer(t)
	var out coreVal.FootballField
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/valuation/football-field", &out))
	assert.Len(t, out.Methods, 5)
	assert.Equal(t, 208.39, out.CurrentPrice)
	sotp, ok := out.Method(coreVal.MethodSOTP)
	require.True(t, ok)
	assert.InDelta(t, 437.514, sotp.Base, 0.01)
}

func TestHandleFootballField_PeersAndCAPM(t *testing.T) {
	peers := []coreVal.PeerComparable{
		{Name: "THC", EVEBITDA: 6.0},
		{Name: "HCA", EVEBITDA: 9.0},
	}
	srv := testServer(t, func(h *Handler) {
		h.Peers = peers
		h.CAPMWACC = true
	})
	var out coreVal.FootballField
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/valuation/football-field", &out))

	target := coreVal.MetricInput{EBITDA: 2775.6, NetDebt: 4378.5, SharesOut: 64.98}
	want, err := coreVal.ImpliedPerShare(target, coreVal.MultipleRange{Low: 6.75, Base: 7.5, High: 8.25})
	require.NoError(t, err)
	comps, ok := out.Method(coreVal.MethodComps)
	require.True(t, ok)
	assert.InDelta(t, want.Base, comps.Base, 1e-6)
	assert.InDelta(t, want.Low, comps.Low, 1e-6)

	in := coreVal.DefaultMasterInput(uhsFiling(), nil)
	_, err = in.UseCAPMWACC()
	require.NoError(t, err)
	dcfIn := coreVal.DCFInput{Base: in.Consolidated, Assumptions: in.DCF, Market: in.Market}
	dcf, err := coreVal.CalculateDCF(dcfIn)
	require.NoError(t, err)
	bar, ok := out.Method(coreVal.MethodDCF)
	require.True(t, ok)
	assert.InDelta(t, dcf.PerShare, bar.Base, 1e-6)
}
