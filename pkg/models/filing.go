package models

// Filing is the static financial data set a valuation run starts from.
// Monetary amounts are in millions of dollars and share counts in millions,
// unless Units says otherwise.
type Filing struct {
	Company    string `json:"company"`
	Ticker     string `json:"ticker"`
	CIK        string `json:"cik,omitempty"`
	FiscalYear int    `json:"fiscal_year"`
	Units      string `json:"units"`

	Segments     []Segment        `json:"segments"`
	BalanceSheet BalanceSheet     `json:"balance_sheet"`
	Capital      CapitalStructure `json:"capital_structure"`
	Market       MarketData       `json:"market"`
	Consolidated Consolidated     `json:"consolidated"`

	// Sources maps a field (e.g. "segments.behavioral.actual_rent") to the
	// filing location it was read from.
	Sources map[string]string `json:"sources,omitempty"`
}

// Segment is one reportable operating segment for a fiscal year.
type Segment struct {
	Key            string  `json:"key"`
	Name           string  `json:"name"`
	Revenue        float64 `json:"revenue"`
	PriorRevenue   float64 `json:"prior_revenue,omitempty"`
	ReportedEBITDA float64 `json:"reported_ebitda"`
	EBITDAMargin   float64 `json:"ebitda_margin"`
	Facilities     int     `json:"facilities"`
	OwnedBeds      int     `json:"owned_beds"`
	LeasedBeds     int     `json:"leased_beds"`
	ActualRent     float64 `json:"actual_rent"` // lease and rental expense
}

// TotalBeds returns owned + leased beds.
func (s Segment) TotalBeds() int {
	return s.OwnedBeds + s.LeasedBeds
}

// OwnedPct returns the owned share of beds, or 0 when the segment has no beds.
func (s Segment) OwnedPct() float64 {
	total := s.TotalBeds()
	if total == 0 {
		return 0
	}
	return float64(s.OwnedBeds) / float64(total)
}

// Margin returns the reported margin, falling back to EBITDA / revenue.
func (s Segment) Margin() float64 {
	if s.EBITDAMargin != 0 {
		return s.EBITDAMargin
	}
	if s.Revenue == 0 {
		return 0
	}
	return s.ReportedEBITDA / s.Revenue
}

type BalanceSheet struct {
	TotalDebt float64 `json:"total_debt"`
	Cash      float64 `json:"cash"`
	NetPPE    float64 `json:"net_ppe"`

	// StatedNetDebt overrides TotalDebt - Cash when the filing discloses it.
	StatedNetDebt *float64 `json:"net_debt,omitempty"`
}

// NetDebt returns the stated net debt if present, otherwise debt less cash.
func (b BalanceSheet) NetDebt() float64 {
	if b.StatedNetDebt != nil {
		return *b.StatedNetDebt
	}
	return b.TotalDebt - b.Cash
}

type CapitalStructure struct {
	SharesOutstanding float64 `json:"shares_outstanding"`
	DilutedShares     float64 `json:"diluted_shares,omitempty"`
}

type MarketData struct {
	SharePrice float64 `json:"share_price"`
	AsOf       string  `json:"as_of,omitempty"`
}

// Consolidated holds the company-level figures the DCF and LBO models use.
type Consolidated struct {
	Revenue           float64 `json:"revenue"`
	EBITDA            float64 `json:"ebitda"`
	Depreciation      float64 `json:"depreciation"`
	EBIT              float64 `json:"ebit"`
	InterestExpense   float64 `json:"interest_expense"`
	TaxExpense        float64 `json:"tax_expense"`
	NetIncome         float64 `json:"net_income"`
	OperatingCashFlow float64 `json:"operating_cash_flow"`
	Capex             float64 `json:"capex"`
	FreeCashFlow      float64 `json:"free_cash_flow"`
}

// Segment looks up a segment by key.
func (f *Filing) Segment(key string) (Segment, bool) {
	for _, s := range f.Segments {
		if s.Key == key {
			return s, true
		}
	}
	return Segment{}, false
}

// SegmentKeys returns segment keys in filing order.
func (f *Filing) SegmentKeys() []string {
	keys := make([]string, 0, len(f.Segments))
	for _, s := range f.Segments {
		keys = append(keys, s.Key)
	}
	return keys
}

// Facility is one row of a facility roster.
type Facility struct {
	Name      string `json:"name"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country,omitempty"`
	Segment   string `json:"segment"`
	Beds      int    `json:"beds"`
	Ownership string `json:"ownership"` // "owned" or "leased"
}
