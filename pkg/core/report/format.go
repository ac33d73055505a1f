// Package report writes valuation results as CSV tables, a JSON summary and a
// Markdown/HTML report.
package report

import (
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Fixed rounds v to places decimals. Non-finite values render empty so
// failed grid cells stay blank in spreadsheets.
func Fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// Cents rounds a dollar amount half away from zero to whole cents.
func Cents(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
}

// Dollars formats a per-share amount, e.g. "$437.51".
func Dollars(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return money.New(Cents(v), money.USD).Display()
}

// Millions formats an amount already in millions, e.g. "$19,654.2M".
func Millions(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	tenths := decimal.NewFromFloat(v).Shift(1).Round(0).IntPart()
	m := money.New(tenths*10, money.USD).Display()
	// one decimal is enough at this scale
	return m[:len(m)-1] + "M"
}

// Pct formats a ratio as a percentage with one decimal, e.g. 0.099 -> "9.9%".
func Pct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Shift(2).StringFixed(1) + "%"
}

// Multiple formats an EV/EBITDA multiple, e.g. "9.5x".
func Multiple(v float64) string {
	return Fixed(v, 1) + "x"
}
