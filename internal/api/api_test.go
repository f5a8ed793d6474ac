package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ranges"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

const testTenant = "tenant-001"

func newTestServer(t *testing.T, rateLimit domain.RateLimitConfig) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(1000)
	t.Cleanup(func() { lru.Close() })

	eventBus := bus.NewChannelBus(64)
	t.Cleanup(func() { eventBus.Close() })

	auditWriter := worker.NewAuditWriter(eventBus, repo)
	if err := auditWriter.Start(worker.Config{TenantIDs: []string{testTenant}}); err != nil {
		t.Fatalf("failed to start audit writer: %v", err)
	}
	t.Cleanup(func() { auditWriter.Stop() })

	scorer := scoring.NewEngine()
	interpreter := ranges.NewInterpreter()
	ruleEngine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	t.Cleanup(func() { ruleEngine.Close() })

	processor := decision.NewProcessor(scorer, interpreter, ruleEngine)

	return NewServer(
		domain.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: 5, WriteTimeout: 5},
		repo, lru, eventBus, scorer, interpreter, ruleEngine, processor,
		"test", rateLimit,
	)
}

func doRequest(t *testing.T, s *Server, method, path string, body any, tenant string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:51234"
	if tenant != "" {
		req.Header.Set(TenantIDHeader, tenant)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %s: %v", rec.Body.String(), err)
	}
}

func seedDefaults(t *testing.T, s *Server) {
	t.Helper()
	if rec := doRequest(t, s, http.MethodPost, "/scoring-config/seed", nil, testTenant); rec.Code != http.StatusCreated {
		t.Fatalf("scoring seed failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(t, s, http.MethodPost, "/score-range/seed", nil, testTenant); rec.Code != http.StatusCreated {
		t.Fatalf("range seed failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	rec := doRequest(t, s, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", body["status"])
	}
}

func TestMissingTenantHeader(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	rec := doRequest(t, s, http.MethodGet, "/rules", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without tenant header, got %d", rec.Code)
	}
}

func TestPredictEndToEnd(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})
	seedDefaults(t, s)

	rec := doRequest(t, s, http.MethodPost, "/predict", map[string]any{
		"applicant": map[string]any{
			"creditScore":      780.0,
			"annualIncome":     95000.0,
			"debtToIncome":     0.2,
			"employmentYears":  8.0,
			"employmentStatus": "full_time",
			"loanAmount":       25000.0,
			"loanPurpose":      "debt_consolidation",
			"delinquencies":    0.0,
		},
	}, testTenant)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var d domain.Decision
	decodeBody(t, rec, &d)
	if d.ID == "" {
		t.Error("expected a decision ID")
	}
	if d.FinalScore < domain.ScoreFloor || d.FinalScore > domain.ScoreCeiling {
		t.Errorf("final score out of scale: %.0f", d.FinalScore)
	}
	if d.ApprovalStatus == "" || d.RiskLevel == "" {
		t.Errorf("expected interpreted outcome, got %+v", d)
	}
	if d.Interpretation.Fallback {
		t.Error("seeded ranges should cover the score")
	}
	if len(d.FactorResults) == 0 {
		t.Error("expected factor-level breakdown")
	}
}

func TestPredictLegacyFlatBody(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})
	seedDefaults(t, s)

	rec := doRequest(t, s, http.MethodPost, "/predict", map[string]any{
		"credit_score":      720.0,
		"annual_income":     60000.0,
		"debt_to_income":    0.3,
		"employment_years":  4.0,
		"employment_status": "full_time",
		"loan_amount":       18000.0,
		"loan_purpose":      "auto",
		"delinquencies":     0.0,
	}, testTenant)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for legacy body, got %d: %s", rec.Code, rec.Body.String())
	}

	var d domain.Decision
	decodeBody(t, rec, &d)

	// Renamed fields must reach the factors: none of the eight may be skipped.
	for _, fr := range d.FactorResults {
		if fr.Skipped {
			t.Errorf("factor %s skipped; legacy rename did not apply", fr.FactorKey)
		}
	}
}

func TestPredictRejectsBadBodies(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})
	seedDefaults(t, s)

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte("not json")))
	req.Header.Set(TenantIDHeader, testTenant)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	if rec := doRequest(t, s, http.MethodPost, "/predict", map[string]any{}, testTenant); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty record, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/predict", map[string]any{
		"applicant": map[string]any{"history": []any{1, 2, 3}},
	}, testTenant)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for array field, got %d", rec.Code)
	}
}

func TestRuleLifecycle(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	created := doRequest(t, s, http.MethodPost, "/rules", map[string]any{
		"name":      "credit bonus",
		"type":      "pricing",
		"condition": map[string]any{"field": "creditScore", "operator": ">", "value": 700},
		"action":    map[string]any{"type": "adjust_score", "adjustment": 5},
		"priority":  5,
		"weight":    1.0,
		"enabled":   true,
	}, testTenant)
	if created.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", created.Code, created.Body.String())
	}

	var cfg domain.RuleConfig
	decodeBody(t, created, &cfg)
	if cfg.ID == "" {
		t.Fatal("expected a generated rule ID")
	}

	list := doRequest(t, s, http.MethodGet, "/rules", nil, testTenant)
	var listBody struct {
		Count  int `json:"count"`
		Loaded int `json:"loaded"`
	}
	decodeBody(t, list, &listBody)
	if listBody.Count != 1 || listBody.Loaded != 1 {
		t.Errorf("expected 1 persisted and 1 loaded, got %+v", listBody)
	}

	// Disable via PATCH; the engine must drop it.
	patch := doRequest(t, s, http.MethodPatch, "/rules/"+cfg.ID, map[string]any{"enabled": false}, testTenant)
	if patch.Code != http.StatusOK {
		t.Fatalf("patch failed: %d %s", patch.Code, patch.Body.String())
	}
	list = doRequest(t, s, http.MethodGet, "/rules", nil, testTenant)
	decodeBody(t, list, &listBody)
	if listBody.Loaded != 0 {
		t.Errorf("disabled rule should unload, loaded=%d", listBody.Loaded)
	}

	del := doRequest(t, s, http.MethodDelete, "/rules/"+cfg.ID, nil, testTenant)
	if del.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", del.Code, del.Body.String())
	}
	if again := doRequest(t, s, http.MethodDelete, "/rules/"+cfg.ID, nil, testTenant); again.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", again.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	rec := doRequest(t, s, http.MethodPost, "/rules", map[string]any{
		"name":      "",
		"type":      "mystery",
		"condition": map[string]any{"field": "creditScore", "operator": "~=", "value": 1},
		"action":    map[string]any{"type": "explode"},
		"priority":  99,
		"weight":    50.0,
	}, testTenant)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body struct {
		Error  string             `json:"error"`
		Errors []domain.FieldError `json:"errors"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "validation failed" {
		t.Errorf("unexpected error message: %q", body.Error)
	}
	if len(body.Errors) < 5 {
		t.Errorf("expected field-level errors for every violation, got %v", body.Errors)
	}
}

func TestCreateRuleRejectsUncompilableCondition(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	// Known operator, but > against a text value cannot compile.
	rec := doRequest(t, s, http.MethodPost, "/rules", map[string]any{
		"name":      "bad",
		"type":      "pricing",
		"condition": map[string]any{"field": "creditScore", "operator": ">", "value": "high"},
		"action":    map[string]any{"type": "adjust_score", "adjustment": 5},
		"priority":  5,
		"weight":    1.0,
	}, testTenant)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for uncompilable condition, got %d", rec.Code)
	}
}

func TestExecuteRulesEndpoint(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	doRequest(t, s, http.MethodPost, "/rules", map[string]any{
		"name":      "credit bonus",
		"type":      "pricing",
		"condition": map[string]any{"field": "creditScore", "operator": ">", "value": 700},
		"action":    map[string]any{"type": "adjust_score", "adjustment": 5},
		"priority":  5,
		"weight":    1.0,
		"enabled":   true,
	}, testTenant)

	rec := doRequest(t, s, http.MethodPost, "/rules/execute", map[string]any{
		"applicant": map[string]any{"creditScore": 720.0},
	}, testTenant)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute failed: %d %s", rec.Code, rec.Body.String())
	}

	var outcome domain.RuleOutcome
	decodeBody(t, rec, &outcome)
	if outcome.ScoreAdjustment != 5 {
		t.Errorf("expected adjustment 5, got %.2f", outcome.ScoreAdjustment)
	}
	if len(outcome.Results) != 1 || !outcome.Results[0].Triggered {
		t.Errorf("expected one triggered result, got %+v", outcome.Results)
	}
}

func TestScoreRangeValidateEndpoint(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	if rec := doRequest(t, s, http.MethodPost, "/score-range/seed", nil, testTenant); rec.Code != http.StatusCreated {
		t.Fatalf("seed failed: %d", rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/score-range/validate", nil, testTenant)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate failed: %d", rec.Code)
	}

	var report domain.RangeValidationReport
	decodeBody(t, rec, &report)
	if !report.IsValid {
		t.Errorf("seeded ranges should validate cleanly: %+v", report)
	}
}

func TestScoreRangeCreateOutOfBounds(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	rec := doRequest(t, s, http.MethodPost, "/score-range", map[string]any{
		"name":                "broken",
		"minScore":            100,
		"maxScore":            900,
		"approvalStatus":      "Approved",
		"riskLevel":           "Low Risk",
		"loanLimitAdjustment": 1.0,
		"priority":            1,
	}, testTenant)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-scale bounds, got %d", rec.Code)
	}
}

func TestPatchScoreRangeRequiresEnabledField(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})
	seedDefaults(t, s)

	rec := doRequest(t, s, http.MethodPatch, "/score-range/range-good", map[string]any{}, testTenant)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing enabled field, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPatch, "/score-range/range-good", map[string]any{"enabled": false}, testTenant)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for valid patch, got %d", rec.Code)
	}
}

func TestScoringConfigSeedAndList(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	if rec := doRequest(t, s, http.MethodPost, "/scoring-config/seed", nil, testTenant); rec.Code != http.StatusCreated {
		t.Fatalf("seed failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := doRequest(t, s, http.MethodGet, "/scoring-config", nil, testTenant)
	var body struct {
		Count  int `json:"count"`
		Loaded int `json:"loaded"`
	}
	decodeBody(t, rec, &body)
	if body.Count != len(scoring.DefaultFactors()) {
		t.Errorf("expected %d seeded factors, got %d", len(scoring.DefaultFactors()), body.Count)
	}
	if body.Loaded != body.Count {
		t.Errorf("expected all seeded factors loaded, got %d of %d", body.Loaded, body.Count)
	}
}

func TestGetMissingResourcesReturn404(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})

	for _, path := range []string{
		"/rules/missing",
		"/score-range/missing",
		"/scoring-config/missing",
		"/decisions/missing",
	} {
		if rec := doRequest(t, s, http.MethodGet, path, nil, testTenant); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestRateLimitExceeded(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{
		Enabled:    true,
		MaxPerMin:  2,
		WindowSecs: 60,
	})

	for i := 0; i < 2; i++ {
		if rec := doRequest(t, s, http.MethodGet, "/rules", nil, testTenant); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/rules", nil, testTenant)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}
}

func TestRateLimitSkipsHealth(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{
		Enabled:    true,
		MaxPerMin:  1,
		WindowSecs: 60,
	})

	for i := 0; i < 5; i++ {
		if rec := doRequest(t, s, http.MethodGet, "/health", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("health must not be rate limited, got %d", rec.Code)
		}
	}
}

func TestDecisionAuditTrail(t *testing.T) {
	s := newTestServer(t, domain.RateLimitConfig{})
	seedDefaults(t, s)

	doRequest(t, s, http.MethodPost, "/rules", map[string]any{
		"name":      "credit bonus",
		"type":      "pricing",
		"condition": map[string]any{"field": "creditScore", "operator": ">", "value": 700},
		"action":    map[string]any{"type": "adjust_score", "adjustment": 5},
		"priority":  5,
		"weight":    1.0,
		"enabled":   true,
	}, testTenant)

	rec := doRequest(t, s, http.MethodPost, "/predict", map[string]any{
		"applicant": map[string]any{"creditScore": 760.0},
	}, testTenant)
	if rec.Code != http.StatusOK {
		t.Fatalf("predict failed: %d %s", rec.Code, rec.Body.String())
	}
	var d domain.Decision
	decodeBody(t, rec, &d)

	// Audit persistence is async; poll until the decision lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := doRequest(t, s, http.MethodGet, "/decisions/"+d.ID, nil, testTenant)
		if got.Code == http.StatusOK {
			var stored domain.Decision
			decodeBody(t, got, &stored)
			if stored.FinalScore != d.FinalScore {
				t.Errorf("stored decision diverged: %.0f vs %.0f", stored.FinalScore, d.FinalScore)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("decision %s never persisted, last status %d", d.ID, got.Code)
		}
		time.Sleep(10 * time.Millisecond)
	}

	execs := doRequest(t, s, http.MethodGet, "/decisions/"+d.ID+"/executions", nil, testTenant)
	if execs.Code != http.StatusOK {
		t.Fatalf("executions lookup failed: %d", execs.Code)
	}
	var execBody struct {
		Count int `json:"count"`
	}
	decodeBody(t, execs, &execBody)
	if execBody.Count != 1 {
		t.Errorf("expected 1 execution record, got %d", execBody.Count)
	}
}
