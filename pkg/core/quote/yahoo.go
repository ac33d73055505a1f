// Package quote fetches the latest daily close for a ticker from the Yahoo
// Finance chart endpoint.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

var ErrNoData = errors.New("no price data returned")

// Quote is the last completed daily bar.
type Quote struct {
	Ticker   string    `json:"ticker"`
	Currency string    `json:"currency"`
	Close    float64   `json:"close"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Volume   int64     `json:"volume"`
	Time     time.Time `json:"time"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type Client struct {
	BaseURL    string
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// LastClose returns the most recent bar with a close price, rounded to cents.
func (c *Client) LastClose(ctx context.Context, ticker string) (*Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	u := c.BaseURL + url.PathEscape(ticker) + "?interval=1d&range=5d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API returned status %d for %s", resp.StatusCode, ticker)
	}

	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("quote API: %s", cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}

	r := cr.Chart.Result[0]
	q := r.Indicators.Quote[0]
	for i := len(q.Close) - 1; i >= 0; i-- {
		if q.Close[i] == nil {
			continue
		}
		out := &Quote{
			Ticker:   ticker,
			Currency: r.Meta.Currency,
			Close:    cents(*q.Close[i]),
		}
		if i < len(q.High) && q.High[i] != nil {
			out.High = cents(*q.High[i])
		}
		if i < len(q.Low) && q.Low[i] != nil {
			out.Low = cents(*q.Low[i])
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			out.Volume = *q.Volume[i]
		}
		if i < len(r.Timestamp) {
			out.Time = time.Unix(r.Timestamp[i], 0).UTC()
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
}

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
