// Package valuation serves read-only valuation results to the dashboard.
package valuation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sotp_valuation/pkg/core/report"
	coreVal "sotp_valuation/pkg/core/valuation"
	"sotp_valuation/pkg/models"
)

// Handler holds the immutable inputs every endpoint values from.
type Handler struct {
	Filing    *models.Filing
	Scenarios coreVal.ScenarioSet
	// Peers and CAPMWACC shape the football field the same way a CLI run does.
	Peers    []coreVal.PeerComparable
	CAPMWACC bool

	norms  []coreVal.RentNormalization
	market coreVal.MarketInputs
}

// NewHandler normalizes the filing once up front.
func NewHandler(f *models.Filing, scenarios coreVal.ScenarioSet, opts coreVal.NormalizeOptions) (*Handler, error) {
	norms, err := coreVal.NormalizeSegments(f.Segments, opts)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", f.Ticker, err)
	}
	return &Handler{
		Filing:    f,
		Scenarios: scenarios,
		norms:     norms,
		market:    coreVal.MarketInputsFromFiling(f),
	}, nil
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/valuation/scenarios", h.get(h.HandleScenarios))
	mux.HandleFunc("/api/valuation/sensitivity", h.get(h.HandleSensitivity))
	mux.HandleFunc("/api/valuation/football-field", h.get(h.HandleFootballField))
	mux.HandleFunc("/api/valuation/normalization", h.get(h.HandleNormalization))
}

// get adds CORS headers and rejects anything but GET.
func (h *Handler) get(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			fn(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

type ScenariosResponse struct {
	Company   string                `json:"company"`
	Ticker    string                `json:"ticker"`
	Scenarios []coreVal.ScenarioRow `json:"scenarios"`
}

// HandleScenarios values every configured scenario. A "custom" row is
// appended when the query overrides the base scenario, e.g.
// ?cap_rate=0.06&multiple.behavioral=10.
func (h *Handler) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	rows := coreVal.RunScenarios(h.norms, h.Scenarios, h.market)

	custom, ok, err := h.customScenario(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if ok {
		if err := custom.Validate(); err != nil {
			writeError(w, err)
			return
		}
		set, err := coreVal.NewScenarioSet(custom)
		if err != nil {
			writeError(w, err)
			return
		}
		rows = append(rows, coreVal.RunScenarios(h.norms, set, h.market)...)
	}

	writeJSON(w, ScenariosResponse{Company: h.Filing.Company, Ticker: h.Filing.Ticker, Scenarios: rows})
}

func (h *Handler) customScenario(r *http.Request) (coreVal.ScenarioParameters, bool, error) {
	q := r.URL.Query()
	baseName := q.Get("scenario")
	if baseName == "" {
		baseName = "base"
	}

	var p coreVal.ScenarioParameters
	touched := false
	for key, vals := range q {
		if key != "cap_rate" && !strings.HasPrefix(key, "multiple.") {
			continue
		}
		if !touched {
			base, err := h.Scenarios.Get(baseName)
			if err != nil {
				return p, false, err
			}
			p = base.WithName("custom")
			touched = true
		}
		v, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			return p, false, fmt.Errorf("%s=%q: %w", key, vals[0], coreVal.ErrInvalidInput)
		}
		if key == "cap_rate" {
			p = p.WithCapRate(v)
			continue
		}
		seg := strings.TrimPrefix(key, "multiple.")
		if _, known := p.Multiple(seg); !known {
			return p, false, fmt.Errorf("%s: %w", seg, coreVal.ErrUnknownSegment)
		}
		p = p.WithMultiple(seg, v)
	}
	return p, touched, nil
}

// HandleSensitivity returns the standard two-way tables around ?scenario=
// (default base).
func (h *Handler) HandleSensitivity(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("scenario")
	if name == "" {
		name = "base"
	}
	base, err := h.Scenarios.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	tables, err := coreVal.StandardTables(h.norms, base, h.market)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]report.SensitivityView, len(tables))
	for i, t := range tables {
		views[i] = report.NewSensitivityView(t)
	}
	writeJSON(w, map[string]any{"scenario": name, "tables": views})
}

// HandleFootballField runs the full model suite.
func (h *Handler) HandleFootballField(w http.ResponseWriter, r *http.Request) {
	in := coreVal.DefaultMasterInput(h.Filing, h.norms)
	in.Scenarios = h.Scenarios
	in.Market = h.market
	in.Peers = h.Peers
	if h.CAPMWACC {
		if _, err := in.UseCAPMWACC(); err != nil {
			writeError(w, err)
			return
		}
	}
	suite, err := coreVal.RunAllValuations(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, suite.FootballField)
}

type NormalizationResponse struct {
	Segments     []coreVal.RentNormalization       `json:"segments"`
	Consolidated coreVal.ConsolidatedNormalization `json:"consolidated"`
}

func (h *Handler) HandleNormalization(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, NormalizationResponse{Segments: h.norms, Consolidated: coreVal.Consolidate(h.norms)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Printf("[API] encode response: %v\n", err)
	}
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, coreVal.ErrUnknownScenario), errors.Is(err, coreVal.ErrUnknownSegment):
		status = http.StatusNotFound
	case errors.Is(err, coreVal.ErrInvalidInput),
		errors.Is(err, coreVal.ErrInvalidCapRate),
		errors.Is(err, coreVal.ErrInvalidMultiple):
		status = http.StatusBadRequest
	}
	fmt.Printf("[API] %d: %v\n", status, err)
	http.Error(w, err.Error(), status)
}
