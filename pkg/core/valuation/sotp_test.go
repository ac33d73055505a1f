package valuation

import (
	"errors"
	"math"
	"testing"
)

func TestCalculateSOTP_Scenarios(t *testing.T) {
	norms := uhsNormalized(t)

	tests := []struct {
		scenario string
		totalEV  float64
		perShare float64
	}{
		{"bear", 28163.765, 366.040},
		{"base", 32808.128, 437.514},
		{"bull", 38344.969, 522.722},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			res, err := CalculateSOTP(norms, mustScenario(t, tt.scenario), uhsMarket())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(res.TotalEV-tt.totalEV) > 0.01 {
				t.Errorf("TotalEV = %.3f, want %.3f", res.TotalEV, tt.totalEV)
			}
			if math.Abs(res.PerShare-tt.perShare) > 0.01 {
				t.Errorf("PerShare = %.3f, want %.3f", res.PerShare, tt.perShare)
			}
			if len(res.Components) != 4 {
				t.Errorf("got %d components, want 4", len(res.Components))
			}
		})
	}
}

func TestCalculateSOTP_ComponentsSumToTotal(t *testing.T) {
	norms := uhsNormalized(t)
	for _, p := range DefaultScenarios().All() {
		res, err := CalculateSOTP(norms, p, uhsMarket())
		if err != nil {
			t.Fatalf("%s: %v", p.Name(), err)
		}
		var sum float64
		for _, c := range res.Components {
			sum += c.Value
		}
		if sum != res.TotalEV {
			t.Errorf("%s: component sum %v != total EV %v", p.Name(), sum, res.TotalEV)
		}
		if math.Abs(res.OpCoValue+res.PropCoValue-res.TotalEV) > 1e-6 {
			t.Errorf("%s: opco + propco != total", p.Name())
		}
		if math.Abs(res.OpCoMix+res.PropCoMix-1) > 1e-12 {
			t.Errorf("%s: mix sums to %v", p.Name(), res.OpCoMix+res.PropCoMix)
		}
	}
}

func TestCalculateSOTP_OpCoIsExactProduct(t *testing.T) {
	norms := uhsNormalized(t)
	res, err := CalculateSOTP(norms, mustScenario(t, "base"), uhsMarket())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, ok := res.Component("behavioral", OpCo)
	if !ok {
		t.Fatal("missing behavioral opco component")
	}
	if c.Value != norms[0].OpCoEBITDA*9.5 {
		t.Errorf("behavioral opco = %v, want %v", c.Value, norms[0].OpCoEBITDA*9.5)
	}
	// (1614.165 - total rent) x 9.5, to the cent
	if math.Round(c.Value*100) != math.Round((1614.165-norms[0].TotalRent)*9.5*100) {
		t.Errorf("behavioral opco %.2f does not reproduce to the cent", c.Value)
	}
}

func TestApplyMultiple(t *testing.T) {
	for _, m := range []float64{0, 0.5, 6, 7, 9.5, 11, 25} {
		got, err := ApplyMultiple(929.5714, m)
		if err != nil {
			t.Fatalf("multiple %v: %v", m, err)
		}
		if got != 929.5714*m {
			t.Errorf("ApplyMultiple(929.5714, %v) = %v", m, got)
		}
	}
	for _, m := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := ApplyMultiple(100, m); !errors.Is(err, ErrInvalidMultiple) {
			t.Errorf("multiple %v: err = %v, want ErrInvalidMultiple", m, err)
		}
	}
}

func TestCapitalizeNOI_MonotonicInCapRate(t *testing.T) {
	const noi = 684.5936
	prev := math.Inf(1)
	for _, c := range Range(0.01, 1.0, 0.01) {
		v, err := CapitalizeNOI(noi, c)
		if err != nil {
			t.Fatalf("cap rate %v: %v", c, err)
		}
		if !(v < prev) {
			t.Errorf("value at cap %v (%v) not below value at previous cap (%v)", c, v, prev)
		}
		prev = v
	}
}

func TestCapitalizeNOI_InvalidCapRate(t *testing.T) {
	for _, c := range []float64{0, -0.05, 1, 1.5, math.NaN()} {
		if _, err := CapitalizeNOI(100, c); !errors.Is(err, ErrInvalidCapRate) {
			t.Errorf("cap rate %v: err = %v, want ErrInvalidCapRate", c, err)
		}
	}
}

func TestPerShareValue(t *testing.T) {
	got, err := PerShareValue(28000, 64.98)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-430.90) > 0.005 {
		t.Errorf("PerShareValue(28000, 64.98) = %.4f, want 430.90", got)
	}
	if _, err := PerShareValue(28000, 0); !errors.Is(err, ErrInvalidShares) {
		t.Errorf("zero shares: err = %v, want ErrInvalidShares", err)
	}
}

func TestCalculateSOTP_InvalidMarket(t *testing.T) {
	norms := uhsNormalized(t)
	base := mustScenario(t, "base")

	mkt := uhsMarket()
	mkt.SharesOutstanding = 0
	if _, err := CalculateSOTP(norms, base, mkt); !errors.Is(err, ErrInvalidShares) {
		t.Errorf("zero shares: err = %v, want ErrInvalidShares", err)
	}

	mkt = uhsMarket()
	mkt.SharePrice = 0
	if _, err := CalculateSOTP(norms, base, mkt); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price: err = %v, want ErrInvalidPrice", err)
	}
}

func TestCalculateSOTP_MissingSegmentMultiple(t *testing.T) {
	norms := uhsNormalized(t)
	p := NewScenario("partial", 0.065, map[string]float64{"behavioral": 9.5})
	if _, err := CalculateSOTP(norms, p, uhsMarket()); !errors.Is(err, ErrUnknownSegment) {
		t.Errorf("err = %v, want ErrUnknownSegment", err)
	}
}

func TestCalculateSOTP_SegmentCapRateOverride(t *testing.T) {
	norms := uhsNormalized(t)
	base := mustScenario(t, "base")
	p := base.WithSegmentCapRate("acute", 0.08)

	res, err := CalculateSOTP(norms, p, uhsMarket())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acute, _ := res.Component("acute", PropCo)
	beh, _ := res.Component("behavioral", PropCo)
	if acute.Rate != 0.08 || beh.Rate != 0.065 {
		t.Errorf("rates = acute %v, behavioral %v; want 0.08, 0.065", acute.Rate, beh.Rate)
	}
}

func TestUpside(t *testing.T) {
	got, err := Upside(437.51, 208.39)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1.0995) > 0.0001 {
		t.Errorf("Upside = %.4f, want 1.0995", got)
	}
	if _, err := Upside(100, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price: err = %v, want ErrInvalidPrice", err)
	}
}
