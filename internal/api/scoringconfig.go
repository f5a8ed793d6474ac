package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// ListScoringFactors returns the scoring factors persisted for the tenant.
func (h *Handler) ListScoringFactors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListScoringFactors(ctx, tenantID, false)
	if err != nil {
		writeRepoError(w, "scoring factors", "", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"factors": configs,
		"count":   len(configs),
		"loaded":  h.scorer.FactorCount(),
	})
}

// GetScoringFactor retrieves a scoring factor by ID.
func (h *Handler) GetScoringFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	factorID := chi.URLParam(r, "id")

	cfg, err := h.repo.GetScoringFactor(ctx, tenantID, factorID)
	if err != nil {
		writeRepoError(w, "scoring factor", factorID, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// CreateScoringFactor validates, persists, and hot-loads a new factor.
func (h *Handler) CreateScoringFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var cfg domain.ScoringFactorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfg.TenantID = tenantID
	cfg.CreatedAt = time.Now().UTC()
	cfg.UpdatedAt = cfg.CreatedAt

	if ve := cfg.Validate(); ve != nil {
		writeValidationError(w, ve)
		return
	}

	if err := h.repo.SaveScoringFactor(ctx, tenantID, &cfg); err != nil {
		writeRepoError(w, "scoring factor", cfg.ID, err)
		return
	}

	h.reloadScorer(r, tenantID)

	slog.Info("scoring factor created", "id", cfg.ID, "factor_key", cfg.FactorKey, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, &cfg)
}

// UpdateScoringFactor replaces an existing factor.
func (h *Handler) UpdateScoringFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	factorID := chi.URLParam(r, "id")

	existing, err := h.repo.GetScoringFactor(ctx, tenantID, factorID)
	if err != nil {
		writeRepoError(w, "scoring factor", factorID, err)
		return
	}

	var cfg domain.ScoringFactorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	cfg.ID = factorID
	cfg.TenantID = tenantID
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	if ve := cfg.Validate(); ve != nil {
		writeValidationError(w, ve)
		return
	}

	if err := h.repo.SaveScoringFactor(ctx, tenantID, &cfg); err != nil {
		writeRepoError(w, "scoring factor", factorID, err)
		return
	}

	h.reloadScorer(r, tenantID)

	slog.Info("scoring factor updated", "id", factorID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, &cfg)
}

// DeleteScoringFactor removes a factor.
func (h *Handler) DeleteScoringFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	factorID := chi.URLParam(r, "id")

	if err := h.repo.DeleteScoringFactor(ctx, tenantID, factorID); err != nil {
		writeRepoError(w, "scoring factor", factorID, err)
		return
	}

	h.reloadScorer(r, tenantID)

	slog.Info("scoring factor deleted", "id", factorID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "scoring factor deleted",
		"id":      factorID,
	})
}

// SeedScoringFactors installs the stock factor set for the tenant.
func (h *Handler) SeedScoringFactors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	seeds := scoring.DefaultFactors()
	now := time.Now().UTC()
	for _, cfg := range seeds {
		cfg.TenantID = tenantID
		cfg.CreatedAt = now
		cfg.UpdatedAt = now
		if err := h.repo.SaveScoringFactor(ctx, tenantID, cfg); err != nil {
			writeRepoError(w, "scoring factor", cfg.ID, err)
			return
		}
	}

	h.reloadScorer(r, tenantID)

	slog.Info("scoring factors seeded", "count", len(seeds), "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "default scoring factors installed",
		"count":   len(seeds),
	})
}

// ReloadScoringFactors re-reads active factors from the store.
func (h *Handler) ReloadScoringFactors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListScoringFactors(ctx, tenantID, true)
	if err != nil {
		writeRepoError(w, "scoring factors", "", err)
		return
	}

	h.scorer.ReloadFactors(configs)

	slog.Info("scoring factors reloaded", "count", len(configs), "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "scoring factors reloaded",
		"count":   len(configs),
	})
}

func (h *Handler) reloadScorer(r *http.Request, tenantID string) {
	configs, err := h.repo.ListScoringFactors(r.Context(), tenantID, true)
	if err != nil {
		slog.Error("failed to re-read scoring factors after mutation", "error", err)
		return
	}
	h.scorer.ReloadFactors(configs)
}
