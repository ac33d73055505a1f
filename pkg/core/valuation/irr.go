package valuation

import (
	"fmt"
	"math"
)

// NPV discounts cash flows at rate, the first flow at t=0.
func NPV(rate float64, flows []float64) float64 {
	var v float64
	for t, cf := range flows {
		v += cf / math.Pow(1+rate, float64(t))
	}
	return v
}

func npvDerivative(rate float64, flows []float64) float64 {
	var d float64
	for t, cf := range flows {
		if t == 0 {
			continue
		}
		d -= float64(t) * cf / math.Pow(1+rate, float64(t+1))
	}
	return d
}

const (
	irrTol     = 1e-10
	irrMaxIter = 200
	irrLow     = -0.9999
	irrHigh    = 10.0
)

// IRR solves NPV(r) = 0. Newton's method from 10% is tried first; if it
// diverges the root is bracketed on (-99.99%, 1000%) and bisected.
func IRR(flows []float64) (float64, error) {
	if len(flows) < 2 {
		return 0, fmt.Errorf("need at least two cash flows: %w", ErrNoIRR)
	}

	r := 0.10
	for i := 0; i < irrMaxIter; i++ {
		f := NPV(r, flows)
		if math.Abs(f) < irrTol {
			return r, nil
		}
		d := npvDerivative(r, flows)
		if d == 0 || math.IsNaN(d) {
			break
		}
		next := r - f/d
		if next <= irrLow || next > irrHigh || math.IsNaN(next) {
			break
		}
		if math.Abs(next-r) < irrTol {
			return next, nil
		}
		r = next
	}

	return bisectIRR(flows)
}

func bisectIRR(flows []float64) (float64, error) {
	lo, hi := irrLow, irrHigh
	flo, fhi := NPV(lo, flows), NPV(hi, flows)
	if math.IsNaN(flo) || math.IsNaN(fhi) || flo*fhi > 0 {
		return 0, ErrNoIRR
	}
	for i := 0; i < 500; i++ {
		mid := (lo + hi) / 2
		fm := NPV(mid, flows)
		if math.Abs(fm) < irrTol || (hi-lo)/2 < irrTol {
			return mid, nil
		}
		if fm*flo < 0 {
			hi = mid
		} else {
			lo, flo = mid, fm
		}
	}
	return (lo + hi) / 2, nil
}
