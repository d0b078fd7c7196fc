package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/policy"
)

// PolicyHandlers manages the policy-pack endpoints.
type PolicyHandlers struct {
	repo *policy.Repository
	log  zerolog.Logger
}

// NewPolicyHandlers creates the policy handlers.
func NewPolicyHandlers(repo *policy.Repository, log zerolog.Logger) *PolicyHandlers {
	return &PolicyHandlers{
		repo: repo,
		log:  log.With().Str("handler", "policy").Logger(),
	}
}

// RegisterRoutes registers all policy routes
func (h *PolicyHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/policy/packs", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{packID}", h.handleGet)
		r.Put("/{packID}", h.handleSave)
	})
}

func (h *PolicyHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	packs, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list policy packs")
		http.Error(w, "Failed to list policy packs", http.StatusInternalServerError)
		return
	}
	if packs == nil {
		packs = []policy.Pack{}
	}
	h.writeJSON(w, http.StatusOK, packs)
}

func (h *PolicyHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "packID")
	pack, err := h.repo.Get(packID)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			http.Error(w, "Policy pack not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("pack_id", packID).Msg("Failed to load policy pack")
		http.Error(w, "Failed to load policy pack", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, pack)
}

func (h *PolicyHandlers) handleSave(w http.ResponseWriter, r *http.Request) {
	var pack policy.Pack
	if err := json.NewDecoder(r.Body).Decode(&pack); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	pack.PackID = chi.URLParam(r, "packID")

	if err := h.repo.Save(&pack); err != nil {
		h.log.Warn().Err(err).Str("pack_id", pack.PackID).Msg("Failed to save policy pack")
		http.Error(w, "Invalid policy pack", http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "pack_id": pack.PackID})
}

func (h *PolicyHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
