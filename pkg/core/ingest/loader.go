// Package ingest loads filing data sets and pulls source material from SEC
// EDGAR: data file loading, jsonpath field maps over raw extraction dumps,
// segment reconciliation, submissions lookup and 10-K section parsing.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	hjson "github.com/hjson/hjson-go/v4"

	"sotp_valuation/pkg/models"
)

// ErrMissingField is wrapped by every MissingFieldError.
var ErrMissingField = errors.New("missing required field")

// MissingFieldError names a required field absent from the input.
type MissingFieldError struct {
	Path   string // canonical field, e.g. "segments[1].actual_rent"
	Source string // jsonpath expression when the field came from a field map
}

func (e *MissingFieldError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("missing required field %s (%s)", e.Path, e.Source)
	}
	return "missing required field " + e.Path
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// =============================================================================
// CANONICAL SCHEMA
// =============================================================================
// Pointer fields distinguish "absent" from zero. A zero rent or zero leased
// beds is valid data; a missing one is not.

type rawFiling struct {
	Company      *string           `json:"company"`
	Ticker       *string           `json:"ticker"`
	CIK          string            `json:"cik"`
	FiscalYear   *int              `json:"fiscal_year"`
	Units        string            `json:"units"`
	Segments     []rawSegment      `json:"segments"`
	BalanceSheet *rawBalanceSheet  `json:"balance_sheet"`
	Capital      *rawCapital       `json:"capital_structure"`
	Market       *rawMarket        `json:"market"`
	Consolidated *rawConsolidated  `json:"consolidated"`
	Sources      map[string]string `json:"sources"`
}

type rawSegment struct {
	Key            *string  `json:"key"`
	Name           *string  `json:"name"`
	Revenue        *float64 `json:"revenue"`
	PriorRevenue   *float64 `json:"prior_revenue"`
	ReportedEBITDA *float64 `json:"reported_ebitda"`
	EBITDAMargin   *float64 `json:"ebitda_margin"`
	Facilities     *int     `json:"facilities"`
	OwnedBeds      *int     `json:"owned_beds"`
	LeasedBeds     *int     `json:"leased_beds"`
	ActualRent     *float64 `json:"actual_rent"`
}

type rawBalanceSheet struct {
	TotalDebt *float64 `json:"total_debt"`
	Cash      *float64 `json:"cash"`
	NetPPE    *float64 `json:"net_ppe"`
	NetDebt   *float64 `json:"net_debt"`
}

type rawCapital struct {
	SharesOutstanding *float64 `json:"shares_outstanding"`
	DilutedShares     *float64 `json:"diluted_shares"`
}

type rawMarket struct {
	SharePrice *float64 `json:"share_price"`
	AsOf       string   `json:"as_of"`
}

type rawConsolidated struct {
	Revenue           *float64 `json:"revenue"`
	EBITDA            *float64 `json:"ebitda"`
	Depreciation      *float64 `json:"depreciation"`
	EBIT              *float64 `json:"ebit"`
	InterestExpense   *float64 `json:"interest_expense"`
	TaxExpense        *float64 `json:"tax_expense"`
	NetIncome         *float64 `json:"net_income"`
	OperatingCashFlow *float64 `json:"operating_cash_flow"`
	Capex             *float64 `json:"capex"`
	FreeCashFlow      *float64 `json:"free_cash_flow"`
}

// =============================================================================
// LOADING
// =============================================================================

// LoadFiling reads a filing data file. Files ending in .hjson are parsed as
// HJSON (comments, unquoted keys); everything else as JSON.
func LoadFiling(path string) (*models.Filing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filing %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".hjson") {
		data, err = hjsonToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse filing %s: %w", path, err)
		}
	}
	f, err := ParseFiling(data)
	if err != nil {
		return nil, fmt.Errorf("load filing %s: %w", path, err)
	}
	return f, nil
}

// ParseFiling decodes a canonical JSON document. All missing required fields
// are reported together.
func ParseFiling(data []byte) (*models.Filing, error) {
	var raw rawFiling
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode filing: %w", err)
	}
	return raw.toFiling()
}

func hjsonToJSON(data []byte) ([]byte, error) {
	var v interface{}
	if err := hjson.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("hjson: %w", err)
	}
	return json.Marshal(v)
}

// fieldChecker accumulates missing-field errors while copying values out.
type fieldChecker struct {
	errs []error
}

func (c *fieldChecker) missing(path string) {
	c.errs = append(c.errs, &MissingFieldError{Path: path})
}

func (c *fieldChecker) str(p *string, path string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		c.missing(path)
		return ""
	}
	return *p
}

func (c *fieldChecker) num(p *float64, path string) float64 {
	if p == nil {
		c.missing(path)
		return 0
	}
	return *p
}

func (c *fieldChecker) count(p *int, path string) int {
	if p == nil {
		c.missing(path)
		return 0
	}
	return *p
}

func opt(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func (r *rawFiling) toFiling() (*models.Filing, error) {
	var c fieldChecker
	f := &models.Filing{
		Company:    c.str(r.Company, "company"),
		Ticker:     c.str(r.Ticker, "ticker"),
		CIK:        r.CIK,
		FiscalYear: c.count(r.FiscalYear, "fiscal_year"),
		Units:      r.Units,
		Sources:    r.Sources,
	}
	if f.Units == "" {
		f.Units = "USD millions"
	}

	if len(r.Segments) == 0 {
		c.missing("segments")
	}
	for i, rs := range r.Segments {
		p := fmt.Sprintf("segments[%d].", i)
		seg := models.Segment{
			Key:            c.str(rs.Key, p+"key"),
			Revenue:        c.num(rs.Revenue, p+"revenue"),
			PriorRevenue:   opt(rs.PriorRevenue),
			ReportedEBITDA: c.num(rs.ReportedEBITDA, p+"reported_ebitda"),
			EBITDAMargin:   opt(rs.EBITDAMargin),
			OwnedBeds:      c.count(rs.OwnedBeds, p+"owned_beds"),
			LeasedBeds:     c.count(rs.LeasedBeds, p+"leased_beds"),
			ActualRent:     c.num(rs.ActualRent, p+"actual_rent"),
		}
		seg.Name = seg.Key
		if rs.Name != nil && *rs.Name != "" {
			seg.Name = *rs.Name
		}
		if rs.Facilities != nil {
			seg.Facilities = *rs.Facilities
		}
		f.Segments = append(f.Segments, seg)
	}

	if bs := r.BalanceSheet; bs == nil {
		c.missing("balance_sheet")
	} else {
		f.BalanceSheet = models.BalanceSheet{
			TotalDebt:     c.num(bs.TotalDebt, "balance_sheet.total_debt"),
			Cash:          c.num(bs.Cash, "balance_sheet.cash"),
			NetPPE:        opt(bs.NetPPE),
			StatedNetDebt: bs.NetDebt,
		}
	}

	if cs := r.Capital; cs == nil {
		c.missing("capital_structure")
	} else {
		f.Capital = models.CapitalStructure{
			SharesOutstanding: c.num(cs.SharesOutstanding, "capital_structure.shares_outstanding"),
			DilutedShares:     opt(cs.DilutedShares),
		}
	}

	if m := r.Market; m == nil {
		c.missing("market")
	} else {
		f.Market = models.MarketData{
			SharePrice: c.num(m.SharePrice, "market.share_price"),
			AsOf:       m.AsOf,
		}
	}

	// The consolidated block only feeds DCF and LBO; when present its
	// headline figures are required.
	if cb := r.Consolidated; cb != nil {
		f.Consolidated = models.Consolidated{
			Revenue:           c.num(cb.Revenue, "consolidated.revenue"),
			EBITDA:            c.num(cb.EBITDA, "consolidated.ebitda"),
			Depreciation:      opt(cb.Depreciation),
			EBIT:              opt(cb.EBIT),
			InterestExpense:   opt(cb.InterestExpense),
			TaxExpense:        opt(cb.TaxExpense),
			NetIncome:         opt(cb.NetIncome),
			OperatingCashFlow: opt(cb.OperatingCashFlow),
			Capex:             opt(cb.Capex),
			FreeCashFlow:      opt(cb.FreeCashFlow),
		}
	}

	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}
	return f, nil
}
