package ingest

// SEC EDGAR submissions API. Documentation: https://www.sec.gov/developer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultDataURL    = "https://data.sec.gov"
	DefaultArchiveURL = "https://www.sec.gov"

	// SEC rejects requests without a descriptive User-Agent.
	DefaultUserAgent = "SOTPValuation/1.0 (research@example.com)"
)

// ErrNoFiling is returned when a company has no filing of the requested form.
var ErrNoFiling = errors.New("no matching filing")

// =============================================================================
// SEC EDGAR DATA TYPES
// =============================================================================

// SECCompanyInfo is the top-level submissions response.
type SECCompanyInfo struct {
	CIK            string     `json:"cik"`
	EntityType     string     `json:"entityType"`
	SIC            string     `json:"sic"`
	SICDescription string     `json:"sicDescription"`
	Name           string     `json:"name"`
	Tickers        []string   `json:"tickers"`
	Exchanges      []string   `json:"exchanges"`
	Filings        SECFilings `json:"filings"`
}

type SECFilings struct {
	Recent SECRecentFilings `json:"recent"`
}

// SECRecentFilings holds filing attributes as parallel arrays.
type SECRecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
	Size            []int    `json:"size"`
}

// Filing is one SEC filing, denormalized from the parallel arrays.
type Filing struct {
	CIK             string    `json:"cik"`
	AccessionNumber string    `json:"accession_number"`
	FilingDate      time.Time `json:"filing_date"`
	ReportDate      time.Time `json:"report_date"`
	FormType        string    `json:"form_type"`
	PrimaryDocument string    `json:"primary_document"`
	Size            int       `json:"size"`
	URL             string    `json:"url"`
}

// =============================================================================
// SEC EDGAR CLIENT
// =============================================================================

// EDGARClient handles SEC EDGAR requests. DataURL and ArchiveURL may be
// pointed at a mirror.
type EDGARClient struct {
	DataURL    string
	ArchiveURL string

	httpClient *http.Client
	userAgent  string
}

// NewEDGARClient creates a client. An empty userAgent uses DefaultUserAgent.
func NewEDGARClient(userAgent string) *EDGARClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &EDGARClient{
		DataURL:    DefaultDataURL,
		ArchiveURL: DefaultArchiveURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
	}
}

func (c *EDGARClient) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SEC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SEC returned status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// FetchCompanyInfo retrieves the submissions document for a CIK. The CIK is
// zero-padded to 10 digits.
func (c *EDGARClient) FetchCompanyInfo(ctx context.Context, cik string) (*SECCompanyInfo, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.DataURL, PadCIK(cik))
	body, err := c.get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	var info SECCompanyInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse SEC response: %w", err)
	}
	return &info, nil
}

// GetFilings returns filings filtered by form type, newest first as SEC
// lists them. A nil formTypes keeps every form; limit 0 means no limit.
func (c *EDGARClient) GetFilings(info *SECCompanyInfo, formTypes []string, limit int) []Filing {
	recent := info.Filings.Recent
	filings := make([]Filing, 0)

	want := make(map[string]bool)
	for _, ft := range formTypes {
		want[ft] = true
	}
	cik := strings.TrimLeft(info.CIK, "0")

	for i := range recent.AccessionNumber {
		if i >= len(recent.Form) || i >= len(recent.PrimaryDocument) {
			break
		}
		if len(formTypes) > 0 && !want[recent.Form[i]] {
			continue
		}

		var filingDate, reportDate time.Time
		if i < len(recent.FilingDate) {
			filingDate, _ = time.Parse("2006-01-02", recent.FilingDate[i])
		}
		if i < len(recent.ReportDate) {
			reportDate, _ = time.Parse("2006-01-02", recent.ReportDate[i])
		}
		size := 0
		if i < len(recent.Size) {
			size = recent.Size[i]
		}

		// {archive}/Archives/edgar/data/{cik}/{accession-no-dashes}/{document}
		acc := strings.ReplaceAll(recent.AccessionNumber[i], "-", "")
		filings = append(filings, Filing{
			CIK:             cik,
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      filingDate,
			ReportDate:      reportDate,
			FormType:        recent.Form[i],
			PrimaryDocument: recent.PrimaryDocument[i],
			Size:            size,
			URL:             fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.ArchiveURL, cik, acc, recent.PrimaryDocument[i]),
		})

		if limit > 0 && len(filings) >= limit {
			break
		}
	}
	return filings
}

// LookupCIK finds the zero-padded CIK for a ticker using SEC's
// company_tickers.json mapping.
func (c *EDGARClient) LookupCIK(ctx context.Context, ticker string) (string, error) {
	body, err := c.get(ctx, c.ArchiveURL+"/files/company_tickers.json", "application/json")
	if err != nil {
		return "", fmt.Errorf("failed to fetch ticker mapping: %w", err)
	}

	// { "0": {"cik_str": 352915, "ticker": "UHS", "title": "..."}, ... }
	var mapping map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &mapping); err != nil {
		return "", fmt.Errorf("failed to parse ticker mapping: %w", err)
	}

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	for _, entry := range mapping {
		if entry.Ticker == ticker {
			return fmt.Sprintf("%010d", entry.CIK), nil
		}
	}
	return "", fmt.Errorf("ticker %s not found in SEC database", ticker)
}

// Latest10K returns metadata for the most recent 10-K of a ticker.
func (c *EDGARClient) Latest10K(ctx context.Context, ticker string) (*Filing, error) {
	cik, err := c.LookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	info, err := c.FetchCompanyInfo(ctx, cik)
	if err != nil {
		return nil, err
	}
	filings := c.GetFilings(info, []string{"10-K"}, 1)
	if len(filings) == 0 {
		return nil, fmt.Errorf("%s: 10-K: %w", ticker, ErrNoFiling)
	}
	return &filings[0], nil
}

// FetchDocument downloads the primary document of a filing.
func (c *EDGARClient) FetchDocument(ctx context.Context, f *Filing) (string, error) {
	body, err := c.get(ctx, f.URL, "text/html")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PadCIK zero-pads a CIK to the 10 digits the submissions API expects.
func PadCIK(cik string) string {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}
