package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/engine"
	"github.com/aristath/rebalancer/internal/idempotency"
	"github.com/aristath/rebalancer/internal/policy"
	"github.com/aristath/rebalancer/internal/runhistory"
	"github.com/aristath/rebalancer/internal/workflow"
)

// RebalanceHandlers handles simulation, run lookup, and workflow decision
// endpoints.
type RebalanceHandlers struct {
	engine      *engine.Engine
	guard       *idempotency.Guard
	history     *runhistory.Store
	resolver    *policy.Resolver
	workflow    *workflow.Service
	defaultPack string
	log         zerolog.Logger
}

// NewRebalanceHandlers creates the rebalance handlers.
func NewRebalanceHandlers(
	eng *engine.Engine,
	guard *idempotency.Guard,
	history *runhistory.Store,
	resolver *policy.Resolver,
	wf *workflow.Service,
	defaultPack string,
	log zerolog.Logger,
) *RebalanceHandlers {
	return &RebalanceHandlers{
		engine:      eng,
		guard:       guard,
		history:     history,
		resolver:    resolver,
		workflow:    wf,
		defaultPack: defaultPack,
		log:         log.With().Str("handler", "rebalance").Logger(),
	}
}

// RegisterRoutes registers all rebalance routes
func (h *RebalanceHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/rebalance", func(r chi.Router) {
		r.Post("/simulate", h.handleSimulate)
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/{runID}", h.handleGetRun)
		r.Get("/runs/{runID}/decisions", h.handleListDecisions)
		r.Post("/runs/{runID}/decisions", h.handleDecide)
	})
}

// SimulateRequest is the wire form of a simulation request. Options is a
// partial document layered over the policy pack and the defaults.
type SimulateRequest struct {
	Portfolio         *domain.PortfolioSnapshot  `json:"portfolio"`
	MarketData        *domain.MarketDataSnapshot `json:"market_data"`
	Model             *domain.ModelPortfolio     `json:"model"`
	Shelf             domain.Shelf               `json:"shelf"`
	PolicyPack        string                     `json:"policy_pack,omitempty"`
	Options           json.RawMessage            `json:"options,omitempty"`
	ProposedCashFlows []domain.Intent            `json:"proposed_cash_flows,omitempty"`
	CorrelationID     string                     `json:"correlation_id,omitempty"`
}

// SimulateResponse wraps the result with replay metadata.
type SimulateResponse struct {
	Result   *domain.RebalanceResult `json:"result"`
	Replayed bool                    `json:"replayed"`
}

func (h *RebalanceHandlers) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	packID := req.PolicyPack
	if packID == "" {
		packID = h.defaultPack
	}
	opts, err := h.resolver.Resolve(packID, req.Options)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			http.Error(w, "Unknown policy pack", http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("Failed to resolve options")
		http.Error(w, "Failed to resolve options", http.StatusInternalServerError)
		return
	}

	engReq := engine.Request{
		Portfolio:         req.Portfolio,
		MarketData:        req.MarketData,
		Model:             req.Model,
		Shelf:             req.Shelf,
		Options:           opts,
		ProposedCashFlows: req.ProposedCashFlows,
		CorrelationID:     req.CorrelationID,
	}
	engReq.RequestHash = engine.CanonicalRequestHash(engReq)

	key := r.Header.Get("Idempotency-Key")
	result, replayed, err := h.guard.Execute(key, engReq.RequestHash, func() (*domain.RebalanceResult, error) {
		res, simErr := h.engine.Simulate(engReq)
		if simErr != nil {
			return nil, simErr
		}
		if saveErr := h.history.SaveRun(res, key); saveErr != nil {
			return nil, saveErr
		}
		return res, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, idempotency.ErrConflict):
			http.Error(w, "Idempotency key reused with a different request", http.StatusConflict)
		default:
			h.log.Error().Err(err).Msg("Simulation failed")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, SimulateResponse{Result: result, Replayed: replayed})
}

func (h *RebalanceHandlers) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	result, err := h.history.GetRun(runID)
	if err != nil {
		if errors.Is(err, runhistory.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load run")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *RebalanceHandlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var (
		runs []runhistory.RunSummary
		err  error
	)
	switch {
	case r.URL.Query().Get("correlation_id") != "":
		runs, err = h.history.ListByCorrelation(r.URL.Query().Get("correlation_id"))
	case r.URL.Query().Get("idempotency_key") != "":
		runs, err = h.history.ListByIdempotencyKey(r.URL.Query().Get("idempotency_key"))
	default:
		http.Error(w, "correlation_id or idempotency_key query parameter required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []runhistory.RunSummary{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// DecisionRequest is a reviewer action against a gated run.
type DecisionRequest struct {
	Action  workflow.Action `json:"action"`
	Actor   string          `json:"actor,omitempty"`
	Comment string          `json:"comment,omitempty"`
}

func (h *RebalanceHandlers) handleDecide(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	decision, err := h.workflow.Decide(runID, req.Action, req.Actor, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, runhistory.ErrNotFound):
			http.Error(w, "Run not found", http.StatusNotFound)
		case errors.Is(err, workflow.ErrDisabled):
			http.Error(w, "Workflow gate is not enabled for this run", http.StatusBadRequest)
		case errors.Is(err, workflow.ErrInvalidTransition):
			http.Error(w, "Invalid workflow transition", http.StatusConflict)
		default:
			h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to record decision")
			http.Error(w, "Failed to record decision", http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, decision)
}

func (h *RebalanceHandlers) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	decisions, err := h.history.ListDecisions(runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to list decisions")
		http.Error(w, "Failed to list decisions", http.StatusInternalServerError)
		return
	}
	if decisions == nil {
		decisions = []workflow.Decision{}
	}
	h.writeJSON(w, http.StatusOK, decisions)
}

func (h *RebalanceHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
