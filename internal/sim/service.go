// Package sim provides the HTTP handlers and orchestration for
// launching simulation runs and querying their trades and welfare
// records.
//
// All prices and energy quantities use shopspring/decimal — never
// float64 for money.
package sim

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gridmesh/p2p-market/internal/config"
	"github.com/gridmesh/p2p-market/internal/engine"
	"github.com/gridmesh/p2p-market/internal/market"
	"github.com/gridmesh/p2p-market/internal/model"
	"github.com/gridmesh/p2p-market/internal/store"
)

// Service handles run operations over HTTP. Runs execute in the
// background; clients poll the run record or subscribe to the
// WebSocket feed for progress.
type Service struct {
	store    store.Store
	runner   *Runner
	defaults *config.Config
}

// NewService creates a new simulation service. The config supplies
// defaults for request fields left unset.
func NewService(st store.Store, runner *Runner, defaults *config.Config) *Service {
	return &Service{store: st, runner: runner, defaults: defaults}
}

// --- Request/Response types ---

// CreateRunRequest is the JSON body for POST /api/v1/runs. Zero values
// fall back to the server's configured defaults.
type CreateRunRequest struct {
	Mechanism       string   `json:"mechanism"` // cda | call
	InfoSet         string   `json:"info_set"`  // book | ticker
	Intervals       int      `json:"intervals"`
	Seed            int64    `json:"seed"`
	Agents          []string `json:"agents"`        // roster specs, e.g. "zic:4"
	FeederCapKW     float64  `json:"feeder_cap_kw"` // 0 = unlimited
	PersistResting  bool     `json:"persist_resting"`
	TieRule         string   `json:"tie_rule"`         // midpoint | low | high
	PriceResolution float64  `json:"price_resolution"` // c/kWh tick
}

// CreateRun handles POST /api/v1/runs. It validates the request,
// persists the run record, and launches execution in the background.
func (s *Service) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mcfg, runCfg := s.resolve(req)

	if mcfg.Mechanism != engine.MechanismCDA && mcfg.Mechanism != engine.MechanismCall {
		writeError(w, "mechanism must be cda or call", http.StatusBadRequest)
		return
	}
	if mcfg.InfoSet != model.InfoSetBook && mcfg.InfoSet != model.InfoSetTicker {
		writeError(w, "info_set must be book or ticker", http.StatusBadRequest)
		return
	}
	if runCfg.Intervals <= 0 {
		writeError(w, "intervals must be positive", http.StatusBadRequest)
		return
	}

	run := &model.Run{
		ID:        uuid.New().String(),
		Mechanism: mcfg.Mechanism,
		InfoSet:   mcfg.InfoSet,
		Agents:    runCfg.Agents,
		Intervals: runCfg.Intervals,
		Seed:      runCfg.Seed,
		Status:    model.RunStatusRunning,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateRun(r.Context(), run); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("run created",
		"id", run.ID,
		"mechanism", run.Mechanism,
		"intervals", run.Intervals,
		"agents", run.Agents,
		"seed", run.Seed,
	)

	s.runner.Start(run, mcfg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run)
}

// resolve merges a request with the server's configured defaults.
func (s *Service) resolve(req CreateRunRequest) (market.Config, config.RunConfig) {
	mc := s.defaults.Market
	rc := s.defaults.Run

	if req.Mechanism != "" {
		mc.Mechanism = req.Mechanism
	}
	if req.InfoSet != "" {
		mc.InfoSet = req.InfoSet
	}
	if req.PriceResolution > 0 {
		mc.PriceResolution = req.PriceResolution
	}
	if req.FeederCapKW > 0 {
		mc.FeederCapKW = req.FeederCapKW
	}
	if req.PersistResting {
		mc.PersistResting = true
	}
	if req.TieRule != "" {
		mc.TieRule = req.TieRule
	}
	if req.Intervals > 0 {
		rc.Intervals = req.Intervals
	}
	if req.Seed != 0 {
		rc.Seed = req.Seed
	}
	if len(req.Agents) > 0 {
		rc.Agents = req.Agents
	}
	return mc.MarketConfig(), rc
}

// GetRun handles GET /api/v1/runs/{runID}
func (s *Service) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// ListRuns handles GET /api/v1/runs
func (s *Service) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}

	// Optional filter by ?status=running|completed|failed.
	if status := r.URL.Query().Get("status"); status != "" {
		var filtered []model.Run
		for _, run := range runs {
			if run.Status == status {
				filtered = append(filtered, run)
			}
		}
		if filtered == nil {
			filtered = []model.Run{}
		}
		runs = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// GetRunTrades handles GET /api/v1/runs/{runID}/trades
// Returns the run's trades in execution order.
func (s *Service) GetRunTrades(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	trades, err := s.store.GetTradesByRun(r.Context(), runID)
	if err != nil {
		writeError(w, "failed to get trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// GetRunWelfare handles GET /api/v1/runs/{runID}/welfare
// Returns per-interval welfare records in interval order.
func (s *Service) GetRunWelfare(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	recs, err := s.store.GetWelfareByRun(r.Context(), runID)
	if err != nil {
		writeError(w, "failed to get welfare records", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.WelfareRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
