package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ListRules returns the rules persisted for the tenant.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListRules(ctx, tenantID, false)
	if err != nil {
		writeRepoError(w, "rules", "", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  configs,
		"count":  len(configs),
		"loaded": h.ruleEngine.RulesCount(),
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	cfg, err := h.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		writeRepoError(w, "rule", ruleID, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// CreateRule validates, compiles, persists, and hot-loads a new rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var cfg domain.RuleConfig
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

	// Compile eagerly so a bad condition is rejected here, not per-record.
	if err := h.ruleEngine.ValidateRule(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid condition: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, tenantID, &cfg); err != nil {
		writeRepoError(w, "rule", cfg.ID, err)
		return
	}

	h.reloadRuleEngine(r, tenantID)

	slog.Info("rule created", "id", cfg.ID, "name", cfg.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, &cfg)
}

// UpdateRule replaces an existing rule.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	existing, err := h.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		writeRepoError(w, "rule", ruleID, err)
		return
	}

	var cfg domain.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	cfg.ID = ruleID
	cfg.TenantID = tenantID
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	if ve := cfg.Validate(); ve != nil {
		writeValidationError(w, ve)
		return
	}
	if err := h.ruleEngine.ValidateRule(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid condition: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, tenantID, &cfg); err != nil {
		writeRepoError(w, "rule", ruleID, err)
		return
	}

	h.reloadRuleEngine(r, tenantID)

	slog.Info("rule updated", "id", ruleID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, &cfg)
}

// PatchRule toggles a rule's active flag.
func (h *Handler) PatchRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "body must be {\"enabled\": true|false}",
		})
		return
	}

	if err := h.repo.SetRuleEnabled(ctx, tenantID, ruleID, *body.Enabled); err != nil {
		writeRepoError(w, "rule", ruleID, err)
		return
	}

	h.reloadRuleEngine(r, tenantID)

	slog.Info("rule toggled", "id", ruleID, "enabled", *body.Enabled, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      ruleID,
		"enabled": *body.Enabled,
	})
}

// DeleteRule deletes a rule unless audit history still references it.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteRule(ctx, tenantID, ruleID); err != nil {
		writeRepoError(w, "rule", ruleID, err)
		return
	}

	h.reloadRuleEngine(r, tenantID)

	slog.Info("rule deleted", "id", ruleID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
		"id":      ruleID,
	})
}

// ExecuteRules runs the rule engine standalone against a supplied record,
// without scoring or interpretation.
func (h *Handler) ExecuteRules(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	record, err := decodeRecord(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid applicant record: " + err.Error(),
		})
		return
	}

	outcome := h.ruleEngine.Execute(r.Context(), record)
	writeJSON(w, http.StatusOK, outcome)
}

// ReloadRules re-reads active rules from the store into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListRules(ctx, tenantID, true)
	if err != nil {
		writeRepoError(w, "rules", "", err)
		return
	}

	if err := h.ruleEngine.ReloadRules(configs); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "count", len(configs), "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded",
		"count":   len(configs),
	})
}

// reloadRuleEngine refreshes the engine after a mutation so the next
// evaluation sees the change. Reload failure is logged, not surfaced: the
// mutation itself already succeeded.
func (h *Handler) reloadRuleEngine(r *http.Request, tenantID string) {
	configs, err := h.repo.ListRules(r.Context(), tenantID, true)
	if err != nil {
		slog.Error("failed to re-read rules after mutation", "error", err)
		return
	}
	if err := h.ruleEngine.ReloadRules(configs); err != nil {
		slog.Error("failed to reload rules after mutation", "error", err)
	}
}
