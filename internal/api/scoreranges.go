package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ranges"
)

// ListScoreRanges returns the score ranges persisted for the tenant.
func (h *Handler) ListScoreRanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListScoreRanges(ctx, tenantID, false)
	if err != nil {
		writeRepoError(w, "score ranges", "", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ranges": configs,
		"count":  len(configs),
		"loaded": h.interpreter.RangeCount(),
	})
}

// GetScoreRange retrieves a score range by ID.
func (h *Handler) GetScoreRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	rangeID := chi.URLParam(r, "id")

	cfg, err := h.repo.GetScoreRange(ctx, tenantID, rangeID)
	if err != nil {
		writeRepoError(w, "score range", rangeID, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// CreateScoreRange validates, persists, and hot-loads a new score range.
func (h *Handler) CreateScoreRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var cfg domain.ScoreRangeConfig
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

	if err := h.repo.SaveScoreRange(ctx, tenantID, &cfg); err != nil {
		writeRepoError(w, "score range", cfg.ID, err)
		return
	}

	h.reloadInterpreter(r, tenantID)

	slog.Info("score range created", "id", cfg.ID, "name", cfg.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, &cfg)
}

// UpdateScoreRange replaces an existing score range.
func (h *Handler) UpdateScoreRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	rangeID := chi.URLParam(r, "id")

	existing, err := h.repo.GetScoreRange(ctx, tenantID, rangeID)
	if err != nil {
		writeRepoError(w, "score range", rangeID, err)
		return
	}

	var cfg domain.ScoreRangeConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	cfg.ID = rangeID
	cfg.TenantID = tenantID
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	if ve := cfg.Validate(); ve != nil {
		writeValidationError(w, ve)
		return
	}

	if err := h.repo.SaveScoreRange(ctx, tenantID, &cfg); err != nil {
		writeRepoError(w, "score range", rangeID, err)
		return
	}

	h.reloadInterpreter(r, tenantID)

	slog.Info("score range updated", "id", rangeID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, &cfg)
}

// PatchScoreRange toggles a score range's active flag.
func (h *Handler) PatchScoreRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	rangeID := chi.URLParam(r, "id")

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "body must be {\"enabled\": true|false}",
		})
		return
	}

	if err := h.repo.SetScoreRangeEnabled(ctx, tenantID, rangeID, *body.Enabled); err != nil {
		writeRepoError(w, "score range", rangeID, err)
		return
	}

	h.reloadInterpreter(r, tenantID)

	slog.Info("score range toggled", "id", rangeID, "enabled", *body.Enabled, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      rangeID,
		"enabled": *body.Enabled,
	})
}

// DeleteScoreRange removes a score range.
func (h *Handler) DeleteScoreRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	rangeID := chi.URLParam(r, "id")

	if err := h.repo.DeleteScoreRange(ctx, tenantID, rangeID); err != nil {
		writeRepoError(w, "score range", rangeID, err)
		return
	}

	h.reloadInterpreter(r, tenantID)

	slog.Info("score range deleted", "id", rangeID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "score range deleted",
		"id":      rangeID,
	})
}

// ValidateScoreRanges reports overlaps and gaps across the tenant's active
// ranges. Configuration tooling uses this; the hot path never does.
func (h *Handler) ValidateScoreRanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListScoreRanges(ctx, tenantID, true)
	if err != nil {
		writeRepoError(w, "score ranges", "", err)
		return
	}

	writeJSON(w, http.StatusOK, ranges.ValidateRanges(configs))
}

// SeedScoreRanges installs the canonical five-tier partition for the tenant.
func (h *Handler) SeedScoreRanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	seeds := ranges.DefaultRanges()
	now := time.Now().UTC()
	for _, cfg := range seeds {
		cfg.TenantID = tenantID
		cfg.CreatedAt = now
		cfg.UpdatedAt = now
		if err := h.repo.SaveScoreRange(ctx, tenantID, cfg); err != nil {
			writeRepoError(w, "score range", cfg.ID, err)
			return
		}
	}

	h.reloadInterpreter(r, tenantID)

	slog.Info("score ranges seeded", "count", len(seeds), "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "default score ranges installed",
		"count":   len(seeds),
	})
}

// ReloadScoreRanges re-reads active ranges from the store.
func (h *Handler) ReloadScoreRanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListScoreRanges(ctx, tenantID, true)
	if err != nil {
		writeRepoError(w, "score ranges", "", err)
		return
	}

	h.interpreter.ReloadRanges(configs)

	slog.Info("score ranges reloaded", "count", len(configs), "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "score ranges reloaded",
		"count":   len(configs),
	})
}

func (h *Handler) reloadInterpreter(r *http.Request, tenantID string) {
	configs, err := h.repo.ListScoreRanges(r.Context(), tenantID, true)
	if err != nil {
		slog.Error("failed to re-read score ranges after mutation", "error", err)
		return
	}
	h.interpreter.ReloadRanges(configs)
}
