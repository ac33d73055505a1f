// Package validate checks the integrity of produced valuation results and
// the reasonableness of their inputs.
package validate

import (
	"fmt"
	"math"
)

// =============================================================================
// YEAR-OVER-YEAR (YoY) CALCULATIONS
// =============================================================================

// CalculateYoY calculates year-over-year change between two values.
// Returns percentage change: (current - prior) / prior * 100
func CalculateYoY(current, prior float64) float64 {
	if prior == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1) // Infinite growth from zero
	}
	return (current - prior) / prior * 100
}

// =============================================================================
// CAGR (Compound Annual Growth Rate)
// =============================================================================

// CalculateCAGR calculates compound annual growth rate as a percentage.
// CAGR = ((EndValue / StartValue) ^ (1/years)) - 1
func CalculateCAGR(startValue, endValue float64, years int) float64 {
	if startValue <= 0 || years <= 0 {
		return 0
	}
	return (math.Pow(endValue/startValue, 1.0/float64(years)) - 1) * 100
}

// =============================================================================
// OUTLIER DETECTION
// =============================================================================

// OutlierCheck identifies suspicious values.
type OutlierCheck struct {
	Item       string
	Value      float64
	PriorValue float64
	ChangePct  float64
	IsOutlier  bool
	Reason     string
	Threshold  float64
}

// CheckForOutlier identifies if a value change is suspicious.
func CheckForOutlier(item string, current, prior, thresholdPct float64) *OutlierCheck {
	changePct := CalculateYoY(current, prior)

	check := &OutlierCheck{
		Item:       item,
		Value:      current,
		PriorValue: prior,
		ChangePct:  changePct,
		Threshold:  thresholdPct,
		IsOutlier:  false,
	}

	// Check for zero when prior was non-zero (likely a modelling error)
	if current == 0 && prior > 0 {
		check.IsOutlier = true
		check.Reason = "Value dropped to zero"
		return check
	}

	// Check for extreme change
	if math.Abs(changePct) > thresholdPct {
		check.IsOutlier = true
		check.Reason = fmt.Sprintf("Change of %.1f%% exceeds threshold of %.1f%%", changePct, thresholdPct)
		return check
	}

	return check
}

// =============================================================================
// TOLERANCES
// =============================================================================

// RelativeDiff is |actual - expected| / |expected|, or the absolute
// difference when expected is zero.
func RelativeDiff(expected, actual float64) float64 {
	diff := math.Abs(actual - expected)
	if expected == 0 {
		return diff
	}
	return diff / math.Abs(expected)
}
