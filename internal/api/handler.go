package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ranges"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	scorer      *scoring.Engine
	interpreter *ranges.Interpreter
	ruleEngine  *rules.Engine
	processor   *decision.Processor
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, scorer *scoring.Engine, interpreter *ranges.Interpreter, ruleEngine *rules.Engine, processor *decision.Processor, version string) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		scorer:      scorer,
		interpreter: interpreter,
		ruleEngine:  ruleEngine,
		processor:   processor,
		version:     version,
	}
}

// legacyFieldNames maps the fixed snake_case body shape accepted by older
// clients onto the canonical record keys.
var legacyFieldNames = map[string]string{
	"credit_score":      "creditScore",
	"annual_income":     "annualIncome",
	"debt_to_income":    "debtToIncome",
	"employment_years":  "employmentYears",
	"loan_amount":       "loanAmount",
	"delinquencies":     "delinquencies",
	"employment_status": "employmentStatus",
	"loan_purpose":      "loanPurpose",
}

// decodeRecord accepts either {"applicant": {...}} or a flat body. Flat
// bodies get legacy snake_case keys renamed to the canonical form.
func decodeRecord(body map[string]any) (domain.ApplicantRecord, error) {
	if nested, ok := body["applicant"].(map[string]any); ok {
		return domain.ParseApplicantRecord(nested)
	}

	fields := make(map[string]any, len(body))
	for name, raw := range body {
		if canonical, ok := legacyFieldNames[name]; ok {
			name = canonical
		}
		fields[name] = raw
	}
	return domain.ParseApplicantRecord(fields)
}

// Predict handles POST /predict requests: one full applicant evaluation.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant record is required",
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

	d := h.processor.Process(ctx, &decision.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Record:    record,
		StartTime: start,
	})

	h.publishAudit(r, tenantID, d)

	writeJSON(w, http.StatusOK, d)
}

// publishAudit hands the decision and its rule execution records to the bus
// for async persistence. Failures are logged and swallowed: audit must never
// change the /predict response.
func (h *Handler) publishAudit(r *http.Request, tenantID string, d *domain.Decision) {
	if h.bus == nil {
		return
	}
	ctx := r.Context()

	if payload, err := json.Marshal(d); err == nil {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
			slog.Error("failed to publish decision audit",
				"decision_id", d.ID,
				"error", err,
			)
		}
	}

	records := rules.ExecutionRecords(tenantID, d.ID, d.RuleResults)
	if len(records) == 0 {
		return
	}
	if payload, err := json.Marshal(records); err == nil {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicRuleAudit, payload); err != nil {
			slog.Error("failed to publish rule execution audit",
				"decision_id", d.ID,
				"error", err,
			)
		}
	}
}

// GetDecision retrieves a persisted decision by ID, reading through the cache.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	decisionID := chi.URLParam(r, "id")

	if decisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decision id is required",
		})
		return
	}

	cacheKey := "decision:" + decisionID
	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, tenantID, cacheKey); err == nil && cached != nil {
			var d domain.Decision
			if json.Unmarshal(cached, &d) == nil {
				writeJSON(w, http.StatusOK, &d)
				return
			}
		}
	}

	d, err := h.repo.GetDecision(ctx, tenantID, decisionID)
	if err != nil {
		writeRepoError(w, "decision", decisionID, err)
		return
	}

	if h.cache != nil {
		if payload, err := json.Marshal(d); err == nil {
			_ = h.cache.Set(ctx, tenantID, cacheKey, payload, 5*time.Minute)
		}
	}

	writeJSON(w, http.StatusOK, d)
}

// GetDecisionExecutions returns the rule execution audit trail for a decision.
func (h *Handler) GetDecisionExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	decisionID := chi.URLParam(r, "id")

	records, err := h.repo.ListRuleExecutions(ctx, tenantID, decisionID)
	if err != nil {
		writeRepoError(w, "decision", decisionID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executions": records,
		"count":      len(records),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeValidationError renders a field-level validation failure as a 400.
func writeValidationError(w http.ResponseWriter, ve *domain.ValidationError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"errors": ve.Fields,
	})
}

// writeRepoError maps repository failures onto the HTTP taxonomy: missing
// records are 404, referential refusals are 400, anything else means the
// store is unavailable and the request is fatal.
func writeRepoError(w http.ResponseWriter, kind, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": kind + " not found",
			"id":    id,
		})
	case errors.Is(err, repository.ErrConstraint):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": kind + " is referenced by audit history; remove dependent records first",
			"id":    id,
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("store operation failed", "kind", kind, "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "configuration store unavailable",
		})
	}
}
