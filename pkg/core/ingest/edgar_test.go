package ingest

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickersResponse = `{
  "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
  "1": {"cik_str": 352915, "ticker": "UHS", "title": "UNIVERSAL HEALTH SERVICES INC"}
}`

const submissionsResponse = `{
  "cik": "352915",
  "name": "UNIVERSAL HEALTH SERVICES INC",
  "sic": "8062",
  "tickers": ["UHS"],
  "filings": {"recent": {
    "accessionNumber": ["0000352915-25-000030", "0000352915-25-000011", "0000352915-24-000009"],
    "filingDate": ["2025-04-28", "2025-02-27", "2024-02-27"],
    "reportDate": ["2025-03-31", "2024-12-31", "2023-12-31"],
    "form": ["10-Q", "10-K", "10-K"],
    "primaryDocument": ["uhs-20250331.htm", "uhs-20241231.htm", "uhs-20231231.htm"],
    "size": [1000, 2000, 3000]
  }}
}`

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func registerEDGAR(t *testing.T) {
	t.Helper()
	httpmock.RegisterResponder("GET", "https://www.sec.gov/files/company_tickers.json",
		httpmock.NewStringResponder(http.StatusOK, tickersResponse))
	httpmock.RegisterResponder("GET", "https://data.sec.gov/submissions/CIK0000352915.json",
		httpmock.NewStringResponder(http.StatusOK, submissionsResponse))
}

func TestEDGARClient_LookupCIK(t *testing.T) {
	setupHTTPMock(t)
	registerEDGAR(t)

	cik, err := NewEDGARClient("").LookupCIK(context.Background(), "uhs")
	require.NoError(t, err)
	assert.Equal(t, "0000352915", cik)

	_, err = NewEDGARClient("").LookupCIK(context.Background(), "ZZZZ")
	assert.Error(t, err)
}

func TestEDGARClient_Latest10K(t *testing.T) {
	setupHTTPMock(t)
	registerEDGAR(t)

	f, err := NewEDGARClient("test agent test@example.com").Latest10K(context.Background(), "UHS")
	require.NoError(t, err)

	assert.Equal(t, "0000352915-25-000011", f.AccessionNumber)
	assert.Equal(t, "10-K", f.FormType)
	assert.Equal(t, 2024, f.ReportDate.Year())
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/352915/000035291525000011/uhs-20241231.htm", f.URL)
}

func TestEDGARClient_SendsUserAgent(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", "https://data.sec.gov/submissions/CIK0000352915.json",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("User-Agent") != "acme research ops@acme.test" {
				return httpmock.NewStringResponse(http.StatusForbidden, "missing agent"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, submissionsResponse), nil
		})

	info, err := NewEDGARClient("acme research ops@acme.test").FetchCompanyInfo(context.Background(), "352915")
	require.NoError(t, err)
	assert.Equal(t, "UNIVERSAL HEALTH SERVICES INC", info.Name)
}

func TestEDGARClient_GetFilings(t *testing.T) {
	c := NewEDGARClient("")
	info := &SECCompanyInfo{CIK: "352915"}
	info.Filings.Recent = SECRecentFilings{
		AccessionNumber: []string{"a-1", "b-2", "c-3"},
		FilingDate:      []string{"2025-04-28", "2025-02-27", "2024-02-27"},
		ReportDate:      []string{"2025-03-31", "2024-12-31", "2023-12-31"},
		Form:            []string{"10-Q", "10-K", "10-K"},
		PrimaryDocument: []string{"q.htm", "k1.htm", "k2.htm"},
	}

	all := c.GetFilings(info, nil, 0)
	assert.Len(t, all, 3)
	ks := c.GetFilings(info, []string{"10-K"}, 0)
	require.Len(t, ks, 2)
	assert.Equal(t, "k1.htm", ks[0].PrimaryDocument)
	assert.Zero(t, ks[0].Size, "missing size array is tolerated")
	assert.Len(t, c.GetFilings(info, []string{"10-K"}, 1), 1)
}

func TestEDGARClient_HTTPError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", `=~^https://data\.sec\.gov/submissions/`,
		httpmock.NewStringResponder(http.StatusTooManyRequests, ""))

	_, err := NewEDGARClient("").FetchCompanyInfo(context.Background(), "352915")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEDGARClient_NoTenK(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", "https://www.sec.gov/files/company_tickers.json",
		httpmock.NewStringResponder(http.StatusOK, tickersResponse))
	httpmock.RegisterResponder("GET", "https://data.sec.gov/submissions/CIK0000352915.json",
		httpmock.NewStringResponder(http.StatusOK, strings.ReplaceAll(submissionsResponse, `"10-K"`, `"8-K"`)))

	_, err := NewEDGARClient("").Latest10K(context.Background(), "UHS")
	assert.True(t, errors.Is(err, ErrNoFiling))
}

func TestFilingFetcher_CachesText(t *testing.T) {
	setupHTTPMock(t)
	registerEDGAR(t)
	body := "<html><body>" + strings.Repeat("<p>Item 2. Properties owned and leased hospitals.</p>", 1200) + "</body></html>"
	httpmock.RegisterResponder("GET", "https://www.sec.gov/Archives/edgar/data/352915/000035291525000011/uhs-20241231.htm",
		httpmock.NewStringResponder(http.StatusOK, body))

	dir := t.TempDir()
	fetcher := NewFilingFetcher(NewEDGARClient(""), dir)

	text, filing, err := fetcher.FetchLatest10K(context.Background(), "UHS")
	require.NoError(t, err)
	assert.Equal(t, "uhs-20241231.htm", filing.PrimaryDocument)
	assert.Contains(t, text, "Item 2. Properties")
	assert.NotContains(t, text, "<p>")

	cached := filepath.Join(dir, "filings", "352915_000035291525000011.txt")
	_, err = os.Stat(cached)
	require.NoError(t, err)

	// Second fetch is served from the cache.
	before := httpmock.GetTotalCallCount()
	_, err = fetcher.FetchText(context.Background(), filing)
	require.NoError(t, err)
	assert.Equal(t, before, httpmock.GetTotalCallCount())
}
