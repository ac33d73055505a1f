// Package npi looks facilities up in the CMS NPPES NPI Registry.
// API documentation: https://npiregistry.cms.hhs.gov/api-page
package npi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"sotp_valuation/pkg/models"
)

const (
	DefaultBaseURL = "https://npiregistry.cms.hhs.gov/api/"

	// NotFound fills the NPI field when no registry entry could be matched.
	NotFound = "Not Found"
)

// Config controls the registry client. Zero fields take defaults.
type Config struct {
	BaseURL           string
	Limit             int           // results per query, registry max 200
	RequestsPerSecond float64       // token bucket refill rate
	CacheTTL          time.Duration // in-memory result cache
	Timeout           time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Limit:             10,
		RequestsPerSecond: 5,
		CacheTTL:          time.Hour,
		Timeout:           20 * time.Second,
	}
}

// =============================================================================
// REGISTRY RESPONSE
// =============================================================================

type searchResponse struct {
	ResultCount int        `json:"result_count"`
	Results     []Provider `json:"results"`
	Errors      []struct {
		Description string `json:"description"`
	} `json:"Errors"`
}

// Provider is one NPI-2 (organization) registry entry.
type Provider struct {
	Number json.Number `json:"number"`
	Basic  struct {
		OrganizationName string `json:"organization_name"`
		Status           string `json:"status"`
	} `json:"basic"`
	OtherNames []OtherName `json:"other_names"`
	Taxonomies []Taxonomy  `json:"taxonomies"`
	Addresses  []Address   `json:"addresses"`
}

type OtherName struct {
	Type             string `json:"type"`
	Code             string `json:"code"`
	OrganizationName string `json:"organization_name"`
}

type Taxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Primary bool   `json:"primary"`
	State   string `json:"state"`
}

type Address struct {
	Purpose    string `json:"address_purpose"` // LOCATION or MAILING
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"telephone_number"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client queries the registry with a token-bucket rate limit and caches
// responses in memory.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *gocache.Cache
}

func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cache:      gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Search runs one organization-name query. City and state narrow the search
// when set.
func (c *Client) Search(ctx context.Context, name, city, state string) ([]Provider, error) {
	key := strings.ToLower(strings.Join([]string{name, city, state}, "|"))
	if cached, ok := c.cache.Get(key); ok {
		if providers, ok := cached.([]Provider); ok {
			return providers, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("version", "2.1")
	q.Set("organization_name", name)
	q.Set("enumeration_type", "NPI-2")
	q.Set("limit", strconv.Itoa(c.cfg.Limit))
	if city != "" {
		q.Set("city", city)
	}
	if state != "" {
		q.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NPI registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NPI registry returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to parse NPI response: %w", err)
	}
	if len(sr.Errors) > 0 {
		return nil, fmt.Errorf("NPI registry: %s", sr.Errors[0].Description)
	}

	c.cache.Set(key, sr.Results, gocache.DefaultExpiration)
	return sr.Results, nil
}

// Lookup tries each name variation in turn and returns the best match from
// the first query with candidates. Request failures are logged and the
// next variation is tried; if nothing matches, the NPI is NotFound.
func (c *Client) Lookup(ctx context.Context, f models.Facility) Match {
	m := Match{Facility: f}
	var lastErr error

	for _, name := range NameVariations(f.Name) {
		candidates, err := c.Search(ctx, name, f.City, f.State)
		if err != nil {
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
			log.Printf("[NPI] %s (%q): %v", f.Name, name, err)
			lastErr = err
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		best := BestMatch(f.Name, candidates)
		m.NPI, m.DBA, m.Taxonomy, m.Phone, m.Address = Details(best)
		m.Candidates = len(candidates)
		m.Query = name
		return m
	}

	m.NPI = NotFound
	if lastErr != nil {
		m.Notes = "lookup failed: " + lastErr.Error()
	} else {
		m.Notes = "NPI not found"
	}
	return m
}
