package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/riskdesk/internal/audit"
	"github.com/opensource-finance/riskdesk/internal/decision"
	"github.com/opensource-finance/riskdesk/internal/domain"
	"github.com/opensource-finance/riskdesk/internal/feed"
	"github.com/opensource-finance/riskdesk/internal/repository"
	"github.com/opensource-finance/riskdesk/internal/simulation"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	scoring      domain.ScoringService
	feed         *feed.Service
	audit        *audit.Builder
	orchestrator *simulation.Orchestrator
	version      string
}

// Deps groups the services behind the API. Repo, Cache and Bus may be nil.
type Deps struct {
	Repo         domain.Repository
	Cache        domain.Cache
	Bus          domain.EventBus
	Scoring      domain.ScoringService
	Feed         *feed.Service
	Audit        *audit.Builder
	Orchestrator *simulation.Orchestrator
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	return &Handler{
		repo:         deps.Repo,
		cache:        deps.Cache,
		bus:          deps.Bus,
		scoring:      deps.Scoring,
		feed:         deps.Feed,
		audit:        deps.Audit,
		orchestrator: deps.Orchestrator,
		version:      version,
	}
}

// Health reports RiskDesk health, including the scoring service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	// The desk still serves snapshots when the scoring service is down
	scoring := "up"
	if err := h.scoring.Health(ctx); err != nil {
		slog.Warn("scoring service health check failed", "error", err)
		scoring = "down"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"scoring": scoring,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ============================================================================
// FEED HANDLERS
// ============================================================================

// GetFeed handles GET /api/feed.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analystID := GetAnalystID(ctx)

	page, err := h.feed.Load(ctx, analystID, r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// GetAudit handles GET /api/feed/{id}/audit.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analystID := GetAnalystID(ctx)

	row, err := h.feed.Lookup(ctx, analystID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.audit.Build(*row))
}

// ExplainTransaction handles POST /api/feed/{id}/explain. Explanations are
// only fetched when the analyst asks for them.
func (h *Handler) ExplainTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analystID := GetAnalystID(ctx)
	txID := chi.URLParam(r, "id")

	row, err := h.feed.Lookup(ctx, analystID, txID)
	if err != nil {
		writeError(w, err)
		return
	}

	rendered, err := h.audit.Explain(ctx, analystID, *row)
	if err != nil {
		slog.Error("explanation failed", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "explanation unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, rendered)
}

// GetModelMetrics handles GET /api/model/metrics.
func (h *Handler) GetModelMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.ModelMetrics(r.Context()))
}

// ============================================================================
// SESSION HANDLERS
// ============================================================================

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	snap := h.orchestrator.Store().Create(GetAnalystID(r.Context()))
	writeJSON(w, http.StatusCreated, snap)
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.orchestrator.Store().Get(GetAnalystID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Store().Delete(GetAnalystID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ThresholdRequest is the request body for PUT /api/sessions/{id}/threshold.
type ThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// SetThreshold handles PUT /api/sessions/{id}/threshold.
func (h *Handler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Threshold == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "threshold is required",
		})
		return
	}

	snap, err := h.orchestrator.Store().SetThreshold(GetAnalystID(r.Context()), chi.URLParam(r, "id"), *req.Threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SelectionRequest is the request body for PUT /api/sessions/{id}/selection.
type SelectionRequest struct {
	TxID string `json:"txId"`
}

// SetSelection handles PUT /api/sessions/{id}/selection. The transaction
// must exist in the analyst's current feed.
func (h *Handler) SetSelection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analystID := GetAnalystID(ctx)

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.TxID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "txId is required",
		})
		return
	}

	if _, err := h.feed.Lookup(ctx, analystID, req.TxID); err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.orchestrator.Store().Select(analystID, chi.URLParam(r, "id"), req.TxID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SimulateRequest is the request body for POST /api/sessions/{id}/simulations.
type SimulateRequest struct {
	Features map[string]float64 `json:"features"`
}

// Simulate handles POST /api/sessions/{id}/simulations.
//
// A failed phase is a normal outcome and is returned with 200 and
// status FAILED. When no features are sent the selected feed transaction is
// replayed.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analystID := GetAnalystID(ctx)
	sessionID := chi.URLParam(r, "id")

	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	features := req.Features
	if len(features) == 0 {
		selected, err := h.selectedFeatures(r, analystID, sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		features = selected
	}

	outcome, err := h.orchestrator.Run(ctx, analystID, sessionID, features)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) selectedFeatures(r *http.Request, analystID, sessionID string) (map[string]float64, error) {
	snap, err := h.orchestrator.Store().Get(analystID, sessionID)
	if err != nil {
		return nil, err
	}
	if snap.SelectedTxID == "" {
		return nil, simulation.ErrInvalidFeatures
	}

	row, err := h.feed.Lookup(r.Context(), analystID, snap.SelectedTxID)
	if err != nil {
		return nil, err
	}

	features := make(map[string]float64, len(row.Transaction.Features)+1)
	for k, v := range row.Transaction.Features {
		features[k] = v
	}
	features[domain.FieldAmount] = row.Transaction.Amount
	return features, nil
}

// ============================================================================
// AUDIT LOG HANDLERS
// ============================================================================

// ListSimulations handles GET /api/simulations.
func (h *Handler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analystID := GetAnalystID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.repo.ListSimulationRuns(ctx, analystID, limit)
	if err != nil {
		slog.Error("failed to list simulation runs", "analyst_id", analystID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list simulations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulations": runs,
		"count":       len(runs),
	})
}

// GetSimulation handles GET /api/simulations/{id}.
func (h *Handler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetSimulationRun(ctx, GetAnalystID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListExplanations handles GET /api/explanations?txId=.
func (h *Handler) ListExplanations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analystID := GetAnalystID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	audits, err := h.repo.ListExplanationAudits(ctx, analystID, r.URL.Query().Get("txId"))
	if err != nil {
		slog.Error("failed to list explanation audits", "analyst_id", analystID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list explanations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"explanations": audits,
		"count":        len(audits),
	})
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, feed.ErrInvalidFilter),
		errors.Is(err, decision.ErrInvalidThreshold),
		errors.Is(err, simulation.ErrInvalidFeatures),
		errors.Is(err, repository.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, simulation.ErrSessionNotFound),
		errors.Is(err, feed.ErrTransactionNotFound),
		errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, simulation.ErrSuperseded):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
