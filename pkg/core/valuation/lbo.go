package valuation

import (
	"fmt"
	"math"

	"sotp_valuation/pkg/models"
)

// LBOAssumptions parameterize the buyout. Rates are annual. FeePct applies
// to equity purchase + refinanced debt, MaxLeverage caps new debt as a
// multiple of EBITDA and MandatoryAmortPct is repaid each year as a share of
// the initial debt.
type LBOAssumptions struct {
	FeePct            float64 `json:"fee_pct" yaml:"fee_pct"`
	MaxDebtPctOfUses  float64 `json:"max_debt_pct_of_uses" yaml:"max_debt_pct_of_uses"`
	MaxLeverage       float64 `json:"max_leverage" yaml:"max_leverage"`
	RevenueGrowth     float64 `json:"revenue_growth" yaml:"revenue_growth"`
	TargetMargin      float64 `json:"ebitda_margin_target" yaml:"ebitda_margin_target"`
	MarginRampYears   int     `json:"margin_ramp_years" yaml:"margin_ramp_years"`
	DepreciationPct   float64 `json:"depreciation_pct" yaml:"depreciation_pct"`
	CapexPct          float64 `json:"capex_pct" yaml:"capex_pct"`
	InterestRate      float64 `json:"interest_rate" yaml:"interest_rate"`
	TaxRate           float64 `json:"tax_rate" yaml:"tax_rate"`
	MandatoryAmortPct float64 `json:"mandatory_amortization_pct" yaml:"mandatory_amortization_pct"`
	HoldingPeriod     int     `json:"holding_period" yaml:"holding_period"`
}

func DefaultLBOAssumptions() LBOAssumptions {
	return LBOAssumptions{
		FeePct:            0.02,
		MaxDebtPctOfUses:  0.60,
		MaxLeverage:       5.0,
		RevenueGrowth:     0.04,
		TargetMargin:      0.19,
		MarginRampYears:   3,
		DepreciationPct:   0.037,
		CapexPct:          0.04,
		InterestRate:      0.075,
		TaxRate:           0.21,
		MandatoryAmortPct: 0.05,
		HoldingPeriod:     5,
	}
}

// LBOInput parameters for a sponsor buyout at a given share price.
type LBOInput struct {
	Base         models.Consolidated
	Market       MarketInputs // NetDebt and SharesOutstanding are used
	EntryPrice   float64      // per share
	ExitMultiple float64      // EV / final-year EBITDA
	Assumptions  LBOAssumptions
}

type SourcesAndUses struct {
	EquityPurchase float64 `json:"equity_purchase"`
	RefinanceDebt  float64 `json:"refinance_debt"`
	Fees           float64 `json:"fees"`
	TotalUses      float64 `json:"total_uses"`
	NewDebt        float64 `json:"new_debt"`
	SponsorEquity  float64 `json:"sponsor_equity"`
	DebtPct        float64 `json:"debt_pct"`
	EntryEV        float64 `json:"entry_ev"`
	EntryMultiple  float64 `json:"entry_multiple"`
	EntryLeverage  float64 `json:"entry_leverage"`
}

type LBOYear struct {
	Year            int     `json:"year"`
	Revenue         float64 `json:"revenue"`
	EBITDA          float64 `json:"ebitda"`
	EBITDAMargin    float64 `json:"ebitda_margin"`
	Depreciation    float64 `json:"depreciation"`
	EBIT            float64 `json:"ebit"`
	InterestExpense float64 `json:"interest_expense"`
	Taxes           float64 `json:"taxes"`
	NetIncome       float64 `json:"net_income"`
	Capex           float64 `json:"capex"`
	FCF             float64 `json:"fcf"` // after capex, before debt paydown
	DebtPaydown     float64 `json:"debt_paydown"`
	DebtBalance     float64 `json:"debt_balance"`
	FCFToEquity     float64 `json:"fcf_to_equity"`
}

type LBOReturns struct {
	Transaction   SourcesAndUses `json:"transaction"`
	Projections   []LBOYear      `json:"projections"`
	ExitEBITDA    float64        `json:"exit_ebitda"`
	ExitMultiple  float64        `json:"exit_multiple"`
	ExitEV        float64        `json:"exit_ev"`
	ExitDebt      float64        `json:"exit_debt"`
	ExitEquity    float64        `json:"exit_equity"`
	InitialEquity float64        `json:"initial_equity"`
	MOIC          float64        `json:"moic"`
	IRR           float64        `json:"irr"`
	CashFlows     []float64      `json:"cash_flows"`
}

// BuildTransaction sizes sources and uses at the entry price. New debt is
// the lesser of MaxDebtPctOfUses of uses and MaxLeverage x EBITDA; the
// sponsor funds the rest.
func BuildTransaction(in LBOInput) (SourcesAndUses, error) {
	a := in.Assumptions
	if !(in.EntryPrice > 0) {
		return SourcesAndUses{}, fmt.Errorf("entry price %v: %w", in.EntryPrice, ErrInvalidPrice)
	}
	if !(in.Market.SharesOutstanding > 0) {
		return SourcesAndUses{}, fmt.Errorf("shares %v: %w", in.Market.SharesOutstanding, ErrInvalidShares)
	}
	if !(in.Base.EBITDA > 0) {
		return SourcesAndUses{}, fmt.Errorf("base EBITDA %v: %w", in.Base.EBITDA, ErrInvalidInput)
	}

	su := SourcesAndUses{
		EquityPurchase: in.EntryPrice * in.Market.SharesOutstanding,
		RefinanceDebt:  in.Market.NetDebt,
	}
	su.EntryEV = su.EquityPurchase + su.RefinanceDebt
	su.EntryMultiple = su.EntryEV / in.Base.EBITDA
	su.Fees = su.EntryEV * a.FeePct
	su.TotalUses = su.EntryEV + su.Fees

	su.NewDebt = math.Min(su.TotalUses*a.MaxDebtPctOfUses, in.Base.EBITDA*a.MaxLeverage)
	su.SponsorEquity = su.TotalUses - su.NewDebt
	su.DebtPct = su.NewDebt / su.TotalUses
	su.EntryLeverage = su.NewDebt / in.Base.EBITDA
	return su, nil
}

// CalculateLBO projects the hold period and computes exit returns.
func CalculateLBO(in LBOInput) (LBOReturns, error) {
	a := in.Assumptions
	if a.HoldingPeriod <= 0 {
		return LBOReturns{}, fmt.Errorf("holding period %d: %w", a.HoldingPeriod, ErrInvalidInput)
	}
	if _, err := ApplyMultiple(1, in.ExitMultiple); err != nil {
		return LBOReturns{}, err
	}
	if !(in.Base.Revenue > 0) {
		return LBOReturns{}, fmt.Errorf("base revenue %v: %w", in.Base.Revenue, ErrInvalidInput)
	}
	su, err := BuildTransaction(in)
	if err != nil {
		return LBOReturns{}, err
	}

	out := LBOReturns{
		Transaction:   su,
		Projections:   make([]LBOYear, 0, a.HoldingPeriod),
		ExitMultiple:  in.ExitMultiple,
		InitialEquity: su.SponsorEquity,
		CashFlows:     []float64{-su.SponsorEquity},
	}

	baseMargin := in.Base.EBITDA / in.Base.Revenue
	var step float64
	if a.MarginRampYears > 0 {
		step = (a.TargetMargin - baseMargin) / float64(a.MarginRampYears)
	}
	mandatory := su.NewDebt * a.MandatoryAmortPct

	revenue, margin, debt := in.Base.Revenue, baseMargin, su.NewDebt
	for year := 1; year <= a.HoldingPeriod; year++ {
		revenue *= 1 + a.RevenueGrowth
		if year <= a.MarginRampYears {
			margin += step
		} else {
			margin = a.TargetMargin
		}

		y := LBOYear{
			Year:            year,
			Revenue:         revenue,
			EBITDA:          revenue * margin,
			EBITDAMargin:    margin,
			Depreciation:    revenue * a.DepreciationPct,
			Capex:           revenue * a.CapexPct,
			InterestExpense: debt * a.InterestRate,
		}
		y.EBIT = y.EBITDA - y.Depreciation
		ebt := y.EBIT - y.InterestExpense
		if ebt > 0 {
			y.Taxes = ebt * a.TaxRate
		}
		y.NetIncome = ebt - y.Taxes
		y.FCF = y.NetIncome + y.Depreciation - y.Capex

		// Mandatory amortization always; sweep any excess. Repayment cannot
		// exceed the outstanding balance.
		paydown := math.Max(y.FCF, mandatory)
		paydown = math.Min(paydown, debt)
		y.DebtPaydown = paydown
		debt -= paydown
		y.DebtBalance = debt
		y.FCFToEquity = y.FCF - paydown

		out.Projections = append(out.Projections, y)
		out.CashFlows = append(out.CashFlows, y.FCFToEquity)
	}

	last := out.Projections[len(out.Projections)-1]
	out.ExitEBITDA = last.EBITDA
	out.ExitEV = last.EBITDA * in.ExitMultiple
	out.ExitDebt = last.DebtBalance
	out.ExitEquity = out.ExitEV - out.ExitDebt
	out.CashFlows[len(out.CashFlows)-1] += out.ExitEquity

	if su.SponsorEquity > 0 {
		out.MOIC = out.ExitEquity / su.SponsorEquity
	}
	irr, err := IRR(out.CashFlows)
	if err != nil {
		return out, fmt.Errorf("entry %.2f, exit %.1fx: %w", in.EntryPrice, in.ExitMultiple, err)
	}
	out.IRR = irr
	return out, nil
}

// LBOGridCell is one entry price x exit multiple combination.
type LBOGridCell struct {
	EntryPrice    float64 `json:"entry_price"`
	EntryMultiple float64 `json:"entry_multiple"`
	ExitMultiple  float64 `json:"exit_multiple"`
	InitialEquity float64 `json:"initial_equity"`
	ExitEquity    float64 `json:"exit_equity"`
	MOIC          float64 `json:"moic"`
	IRR           float64 `json:"irr"`
	Error         string  `json:"error,omitempty"`
}

// DefaultLBOGridAxes: entry $300-$425 per share, exit 8.0x-10.0x.
func DefaultLBOGridAxes() (entryPrices, exitMultiples []float64) {
	return []float64{300, 325, 350, 355, 375, 400, 425}, Range(8.0, 10.5, 0.5)
}

// LBOGrid runs the model for each entry price x exit multiple. Failed cells
// carry their error and NaN returns.
func LBOGrid(base LBOInput, entryPrices, exitMultiples []float64) []LBOGridCell {
	cells := make([]LBOGridCell, 0, len(entryPrices)*len(exitMultiples))
	cartesian([]int{len(entryPrices), len(exitMultiples)}, func(idx []int) {
		in := base
		in.EntryPrice = entryPrices[idx[0]]
		in.ExitMultiple = exitMultiples[idx[1]]
		c := LBOGridCell{EntryPrice: in.EntryPrice, ExitMultiple: in.ExitMultiple}
		r, err := CalculateLBO(in)
		c.EntryMultiple = r.Transaction.EntryMultiple
		c.InitialEquity = r.InitialEquity
		c.ExitEquity = r.ExitEquity
		c.MOIC = r.MOIC
		if err != nil {
			c.IRR = math.NaN()
			c.Error = err.Error()
		} else {
			c.IRR = r.IRR
		}
		cells = append(cells, c)
	})
	return cells
}

// ReverseLBO finds the highest entry price in [lo, hi] that still yields
// targetIRR at the given exit multiple. IRR falls as price rises, so the
// price is bisected to a cent.
func ReverseLBO(base LBOInput, targetIRR, lo, hi float64) (LBOReturns, error) {
	if !(lo > 0) || hi <= lo {
		return LBOReturns{}, fmt.Errorf("price bracket [%v, %v]: %w", lo, hi, ErrInvalidInput)
	}
	irrAt := func(p float64) (LBOReturns, error) {
		in := base
		in.EntryPrice = p
		return CalculateLBO(in)
	}

	rLo, err := irrAt(lo)
	if err != nil {
		return LBOReturns{}, err
	}
	if rLo.IRR < targetIRR {
		return LBOReturns{}, fmt.Errorf("target IRR %.2f%% not reachable at $%.2f (IRR %.2f%%): %w",
			targetIRR*100, lo, rLo.IRR*100, ErrInvalidInput)
	}
	rHi, err := irrAt(hi)
	if err == nil && rHi.IRR >= targetIRR {
		return rHi, nil
	}

	best := rLo
	for hi-lo > 0.005 {
		mid := (lo + hi) / 2
		r, err := irrAt(mid)
		if err != nil || r.IRR < targetIRR {
			hi = mid
			continue
		}
		lo, best = mid, r
	}
	return best, nil
}
