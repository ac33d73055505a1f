package valuation

import (
	"errors"
	"math"
	"testing"

	"sotp_valuation/pkg/models"
)

func TestCalculateComps_Quartiles(t *testing.T) {
	peers := []PeerComparable{
		{Name: "THC", EVEBITDA: 6.0, EVRevenue: 1.0},
		{Name: "ACHC", EVEBITDA: 7.0, EVRevenue: 1.5},
		{Name: "HCA", EVEBITDA: 9.1, EVRevenue: 1.6},
		{Name: "CYH", EVEBITDA: 9.65, EVRevenue: 0.9},
		{Name: "Deal A", EVEBITDA: 12, IsTransaction: true},
	}
	target := MetricInput{Revenue: 15827.9, EBITDA: 2775.6, NetIncome: 1142.1, NetDebt: 4378.5, SharesOut: 64.98}

	res, err := CalculateComps(target, peers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Peers != 4 {
		t.Errorf("peers = %d, want 4 (transactions excluded)", res.Peers)
	}
	// sorted 6, 7, 9.1, 9.65: median 8.05, p25 6.75, p75 9.2375
	if math.Abs(res.EVEBITDA.Base-8.05) > 1e-9 {
		t.Errorf("median = %v, want 8.05", res.EVEBITDA.Base)
	}
	if math.Abs(res.EVEBITDA.Low-6.75) > 1e-9 || math.Abs(res.EVEBITDA.High-9.2375) > 1e-9 {
		t.Errorf("quartiles = %v / %v", res.EVEBITDA.Low, res.EVEBITDA.High)
	}
	wantPS := (8.05*2775.6 - 4378.5) / 64.98
	if math.Abs(res.PerShareEBITDA.Base-wantPS) > 1e-9 {
		t.Errorf("per share = %v, want %v", res.PerShareEBITDA.Base, wantPS)
	}

	deals, err := CalculateTransactions(target, peers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deals.EVEBITDA.Base != 12 {
		t.Errorf("single deal median = %v, want 12", deals.EVEBITDA.Base)
	}
}

func TestCalculateComps_NoPeers(t *testing.T) {
	target := MetricInput{EBITDA: 100, SharesOut: 10}
	if _, err := CalculateComps(target, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestPeerRanges_FallsBackPerSide(t *testing.T) {
	peers, err := ParsePeers([]byte(`
peers:
  - {name: THC, ev_ebitda: 6.0}
  - {name: HCA, ev_ebitda: 9.0}
`))
	if err != nil {
		t.Fatalf("ParsePeers: %v", err)
	}
	target := MetricInput{EBITDA: 2775.6, NetDebt: 4378.5, SharesOut: 64.98}
	comps, prec, err := PeerRanges(target, peers, DefaultCompsRange, DefaultPrecedentsRange)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// two points: p25 6.75, median 7.5, p75 8.25
	if math.Abs(comps.Base-7.5) > 1e-9 || math.Abs(comps.Low-6.75) > 1e-9 || math.Abs(comps.High-8.25) > 1e-9 {
		t.Errorf("comps = %+v", comps)
	}
	if prec != DefaultPrecedentsRange {
		t.Errorf("precedents = %+v, want fallback %+v", prec, DefaultPrecedentsRange)
	}

	if _, err := ParsePeers([]byte("peers: []")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty peer list err = %v, want ErrInvalidInput", err)
	}
}

func TestImpliedPerShare_FixedRange(t *testing.T) {
	target := MetricInput{EBITDA: 2775.6, NetDebt: 4378.5, SharesOut: 64.98}
	got, err := ImpliedPerShare(target, DefaultCompsRange)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got.Low-188.9058) > 0.001 {
		t.Errorf("low = %.4f, want 188.9058", got.Low)
	}
	if !(got.Low < got.Base && got.Base < got.High) {
		t.Errorf("range not ordered: %+v", got)
	}
}

func TestBuildFootballField_Weights(t *testing.T) {
	methods := []MethodRange{
		{Method: MethodSOTP, Low: 366, Base: 437.5, High: 522.7, Weight: 0.30},
		{Method: MethodDCF, Low: 388, Base: 425, High: 467, Weight: 0.25},
		{Method: MethodLBO, Low: 265, Base: 320, High: 364, Weight: 0.20},
		{Method: MethodComps, Low: 189, Base: 232, High: 274, Weight: 0.10},
		{Method: MethodPrecedents, Low: 274, Base: 360, High: 445, Weight: 0.15},
	}
	ff, err := BuildFootballField(methods, 208.39, &PriceBand{Low: 425, High: 475})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantBase := 0.30*437.5 + 0.25*425 + 0.20*320 + 0.10*232 + 0.15*360
	if math.Abs(ff.Weighted.Base-wantBase) > 1e-9 {
		t.Errorf("weighted base = %v, want %v", ff.Weighted.Base, wantBase)
	}
	if rows := ff.Rows(); len(rows) != 6 || rows[5].Method != MethodWeighted {
		t.Errorf("rows = %d, last = %s", len(rows), rows[len(rows)-1].Method)
	}
	if m, _ := ff.Method(MethodDCF); m.Label != "DCF (10-Year)" {
		t.Errorf("dcf label = %q", m.Label)
	}

	methods[0].Weight = 0.5
	if _, err := BuildFootballField(methods, 208.39, nil); !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("err = %v, want ErrInvalidWeights", err)
	}
}

func TestRunAllValuations(t *testing.T) {
	f := &models.Filing{
		Segments:     uhsSegments(),
		BalanceSheet: models.BalanceSheet{TotalDebt: 4504.5, Cash: 126.0},
		Capital:      models.CapitalStructure{SharesOutstanding: 64.98},
		Market:       models.MarketData{SharePrice: 208.39},
		Consolidated: uhsConsolidated(),
	}
	in := DefaultMasterInput(f, uhsNormalized(t))

	out, err := RunAllValuations(in)
	if err != nil {
		t.Fatalf("RunAllValuations: %v", err)
	}
	if len(out.FootballField.Methods) != 5 {
		t.Fatalf("got %d methods, want 5", len(out.FootballField.Methods))
	}

	sotp, _ := out.FootballField.Method(MethodSOTP)
	if math.Abs(sotp.Base-437.514) > 0.01 {
		t.Errorf("SOTP base = %.3f, want 437.514", sotp.Base)
	}
	lbo, _ := out.FootballField.Method(MethodLBO)
	if !(lbo.Low < lbo.Base && lbo.Base < lbo.High) {
		t.Errorf("LBO range not ordered: %+v", lbo)
	}
	dcf, _ := out.FootballField.Method(MethodDCF)
	if !(dcf.Low < dcf.Base && dcf.Base < dcf.High) {
		t.Errorf("DCF range not ordered: %+v", dcf)
	}
	if out.FootballField.CurrentPrice != 208.39 {
		t.Errorf("current price = %v", out.FootballField.CurrentPrice)
	}
}

func TestDefaultMasterInput_DCFRates(t *testing.T) {
	if w := DefaultDCFAssumptions().WACC; w != 0.085 {
		t.Errorf("default WACC = %v, want 0.085", w)
	}
	f := &models.Filing{
		BalanceSheet: models.BalanceSheet{TotalDebt: 4504.5, Cash: 126.0},
		Capital:      models.CapitalStructure{SharesOutstanding: 64.98},
		Market:       models.MarketData{SharePrice: 208.39},
	}
	in := DefaultMasterInput(f, nil)
	if in.DCFWACCs != [3]float64{0.095, 0.09, 0.085} {
		t.Errorf("football DCF band = %v", in.DCFWACCs)
	}

	w, err := in.UseCAPMWACC()
	if err != nil {
		t.Fatalf("UseCAPMWACC: %v", err)
	}
	if in.DCF.WACC != w.WACC || in.DCFWACCs[1] != w.WACC {
		t.Errorf("DCF discounted at %v / %v, want CAPM %v", in.DCF.WACC, in.DCFWACCs[1], w.WACC)
	}
	if math.Abs(in.DCFWACCs[0]-in.DCFWACCs[2]-0.01) > 1e-12 {
		t.Errorf("CAPM band = %v, want +/- 50bp", in.DCFWACCs)
	}
}
