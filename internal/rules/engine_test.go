package rules

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func adjustRule(id string, priority int, field string, op domain.Operator, value domain.Value, delta float64) *domain.RuleConfig {
	return &domain.RuleConfig{
		ID:        id,
		Name:      id,
		Type:      domain.RulePricing,
		Condition: domain.Condition{Field: field, Operator: op, Value: value},
		Action:    domain.Action{Type: domain.ActionAdjustScore, Adjustment: delta},
		Priority:  priority,
		Weight:    1.0,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
}

func statusRule(id string, priority int, action domain.ActionType, createdAt time.Time) *domain.RuleConfig {
	return &domain.RuleConfig{
		ID:        id,
		Name:      id,
		Type:      domain.RuleEligibility,
		Condition: domain.Condition{Field: "creditScore", Operator: domain.OpGT, Value: domain.Number(0)},
		Action:    domain.Action{Type: action, Reason: id},
		Priority:  priority,
		Weight:    1.0,
		Enabled:   true,
		CreatedAt: createdAt,
	}
}

func record(fields map[string]any) domain.ApplicantRecord {
	r, err := domain.ParseApplicantRecord(fields)
	if err != nil {
		panic(err)
	}
	return r
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	if err := engine.LoadRule(adjustRule("r-1", 5, "creditScore", domain.OpGT, domain.Number(700), 5)); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestValidateRuleRejectsUnknownOperator(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	bad := adjustRule("r-bad", 5, "creditScore", "~=", domain.Number(1), 5)
	if err := engine.ValidateRule(bad); err == nil {
		t.Error("expected error for unknown operator")
	}
}

func TestValidateRuleRejectsNonNumericOrderingValue(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	bad := adjustRule("r-bad", 5, "creditScore", domain.OpGT, domain.Text("seven hundred"), 5)
	if err := engine.ValidateRule(bad); err == nil {
		t.Error("expected error for > against a text value")
	}
}

func TestNumericConditionTriggers(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("credit-bonus", 5, "creditScore", domain.OpGT, domain.Number(700), 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 720.0}))

	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(outcome.Results))
	}
	r := outcome.Results[0]
	if !r.Triggered {
		t.Fatal("expected rule to trigger for 720 > 700")
	}
	if r.ScoreAdjustment != 5 {
		t.Errorf("expected result adjustment 5, got %.2f", r.ScoreAdjustment)
	}
	if !outcome.HasScoreAdjustment || outcome.ScoreAdjustment != 5 {
		t.Errorf("expected outcome adjustment 5, got %.2f", outcome.ScoreAdjustment)
	}
}

func TestNumericConditionNotTriggeredAtBoundary(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("credit-bonus", 5, "creditScore", domain.OpGT, domain.Number(700), 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 700.0}))

	if outcome.Results[0].Triggered {
		t.Error("700 > 700 should not trigger")
	}
	if outcome.HasScoreAdjustment {
		t.Error("untriggered rule should not produce an adjustment")
	}
}

func TestNonNumericOperandIsFalseNotFatal(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("credit-bonus", 5, "creditScore", domain.OpGT, domain.Number(700), 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": "excellent"}))

	r := outcome.Results[0]
	if r.Triggered {
		t.Error("non-numeric operand should make the condition false")
	}
	if r.Error != "" {
		t.Errorf("non-numeric operand should not be an evaluation error, got %q", r.Error)
	}
}

func TestMissingFieldIsFalse(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("credit-bonus", 5, "creditScore", domain.OpGT, domain.Number(700), 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"annualIncome": 50000.0}))

	if outcome.Results[0].Triggered {
		t.Error("missing field should make the condition false")
	}
	if outcome.Results[0].Error != "" {
		t.Errorf("missing field should not error, got %q", outcome.Results[0].Error)
	}
}

func TestScoreAdjustmentsSum(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("bonus", 9, "creditScore", domain.OpGT, domain.Number(700), 10))
	engine.LoadRule(adjustRule("penalty", 2, "debtToIncome", domain.OpGT, domain.Number(0.4), -3))

	outcome := engine.Execute(context.Background(), record(map[string]any{
		"creditScore":  720.0,
		"debtToIncome": 0.5,
	}))

	if outcome.ScoreAdjustment != 7 {
		t.Errorf("expected aggregate delta +7, got %.2f", outcome.ScoreAdjustment)
	}
	if !outcome.HasScoreAdjustment {
		t.Error("expected HasScoreAdjustment")
	}
}

func TestZeroNetAdjustmentIsNotReported(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("up", 9, "creditScore", domain.OpGT, domain.Number(700), 5))
	engine.LoadRule(adjustRule("down", 2, "creditScore", domain.OpGT, domain.Number(700), -5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 720.0}))

	if outcome.ScoreAdjustment != 0 {
		t.Errorf("expected net 0, got %.2f", outcome.ScoreAdjustment)
	}
	if outcome.HasScoreAdjustment {
		t.Error("a zero net delta should not be reported as an adjustment")
	}
}

func TestEvaluationOrderDescendingPriority(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("low", 1, "creditScore", domain.OpGT, domain.Number(0), 1))
	engine.LoadRule(adjustRule("high", 10, "creditScore", domain.OpGT, domain.Number(0), 1))
	engine.LoadRule(adjustRule("mid", 5, "creditScore", domain.OpGT, domain.Number(0), 1))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 700.0}))

	want := []string{"high", "mid", "low"}
	for i, name := range want {
		if outcome.Results[i].RuleID != name {
			t.Errorf("position %d: expected %s, got %s", i, name, outcome.Results[i].RuleID)
		}
	}
}

func TestLastStatusOverrideWins(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	// Higher priority evaluates first; the later-evaluated approve wins.
	engine.LoadRule(statusRule("reject-first", 8, domain.ActionReject, base))
	engine.LoadRule(statusRule("approve-last", 2, domain.ActionApprove, base.Add(time.Hour)))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 700.0}))

	if outcome.StatusOverride != domain.StatusApproved {
		t.Errorf("expected later-evaluated approve to win, got %q", outcome.StatusOverride)
	}
}

func TestEqualPriorityTieBreaksByCreation(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	engine.LoadRule(statusRule("older-approve", 5, domain.ActionApprove, base))
	engine.LoadRule(statusRule("newer-reject", 5, domain.ActionReject, base.Add(time.Hour)))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 700.0}))

	// Older rules evaluate first on equal priority, so the newer reject is
	// the last writer.
	if outcome.StatusOverride != domain.StatusRejected {
		t.Errorf("expected newer reject to win the tie, got %q", outcome.StatusOverride)
	}
}

func TestFlagAction(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	cfg := statusRule("flag-thin-file", 5, domain.ActionFlag, time.Now().UTC())
	engine.LoadRule(cfg)

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 700.0}))

	if !outcome.Results[0].Flagged {
		t.Error("expected flagged result")
	}
	if outcome.StatusOverride != "" {
		t.Error("flag must not override status")
	}
	if outcome.HasScoreAdjustment {
		t.Error("flag must not adjust the score")
	}
}

func TestLimitAdjustmentSumAndCap(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	mk := func(id string, priority int, delta, cap float64) *domain.RuleConfig {
		return &domain.RuleConfig{
			ID:        id,
			Name:      id,
			Type:      domain.RuleLimit,
			Condition: domain.Condition{Field: "creditScore", Operator: domain.OpGT, Value: domain.Number(0)},
			Action:    domain.Action{Type: domain.ActionAdjustLimit, Adjustment: delta, Cap: cap},
			Priority:  priority,
			Weight:    1.0,
			Enabled:   true,
			CreatedAt: time.Now().UTC(),
		}
	}
	engine.LoadRule(mk("limit-a", 9, 3, 0))
	engine.LoadRule(mk("limit-b", 2, 3, 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 700.0}))

	if !outcome.HasLimitAdjustment {
		t.Fatal("expected a limit adjustment")
	}
	// Sum is 6, capped at 5 by the second rule's configured maximum.
	if outcome.LimitAdjustment != 5 {
		t.Errorf("expected capped limit delta 5, got %.2f", outcome.LimitAdjustment)
	}
}

func TestMultiplierScalesAdjustment(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	cfg := adjustRule("scaled", 5, "creditScore", domain.OpGT, domain.Number(0), 10)
	cfg.Action.Multiplier = 1.5
	engine.LoadRule(cfg)

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 700.0}))

	if outcome.ScoreAdjustment != 15 {
		t.Errorf("expected 10 * 1.5 = 15, got %.2f", outcome.ScoreAdjustment)
	}
}

func TestStringOperators(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	mk := func(id string, op domain.Operator, value string) *domain.RuleConfig {
		cfg := adjustRule(id, 5, "loanPurpose", op, domain.Text(value), 1)
		return cfg
	}
	engine.LoadRule(mk("eq", domain.OpEQ, "debt_consolidation"))
	engine.LoadRule(mk("includes", domain.OpIncludes, "consolid"))
	engine.LoadRule(mk("starts", domain.OpStartsWith, "debt_"))
	engine.LoadRule(mk("ends", domain.OpEndsWith, "_consolidation"))
	engine.LoadRule(mk("neq", domain.OpNEQ, "auto"))

	outcome := engine.Execute(context.Background(), record(map[string]any{"loanPurpose": "debt_consolidation"}))

	for _, r := range outcome.Results {
		if !r.Triggered {
			t.Errorf("rule %s should trigger against %q", r.RuleID, "debt_consolidation")
		}
		if r.Error != "" {
			t.Errorf("rule %s errored: %s", r.RuleID, r.Error)
		}
	}
}

func TestEqualityAgainstBoolCoercesString(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("homeowner", 5, "ownsHome", domain.OpEQ, domain.Bool(true), 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"ownsHome": true}))
	if !outcome.Results[0].Triggered {
		t.Error("expected ownsHome == true to trigger")
	}

	outcome = engine.Execute(context.Background(), record(map[string]any{"ownsHome": false}))
	if outcome.Results[0].Triggered {
		t.Error("expected ownsHome == true not to trigger for false")
	}
}

func TestEvaluationErrorIsIsolated(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	// Date comparison against a numeric field fails at evaluation time.
	bad := adjustRule("bad-date", 9, "applicationDate", domain.OpGT,
		domain.Date(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)), 5)
	good := adjustRule("good", 2, "creditScore", domain.OpGT, domain.Number(700), 5)
	engine.LoadRule(bad)
	engine.LoadRule(good)

	outcome := engine.Execute(context.Background(), record(map[string]any{
		"applicationDate": 42.0,
		"creditScore":     720.0,
	}))

	if len(outcome.Results) != 2 {
		t.Fatalf("expected both rules recorded, got %d", len(outcome.Results))
	}

	errored := outcome.Results[0]
	if errored.Triggered {
		t.Error("errored rule must not count as triggered")
	}
	if errored.Error == "" {
		t.Error("expected an error reason on the failed rule")
	}
	if errored.Action != domain.ActionUnknown {
		t.Errorf("expected action unknown on failure, got %s", errored.Action)
	}

	if !outcome.Results[1].Triggered {
		t.Error("failure of one rule must not abort the rest")
	}
	if outcome.ScoreAdjustment != 5 {
		t.Errorf("expected only the good rule's delta, got %.2f", outcome.ScoreAdjustment)
	}
}

func TestDateComparison(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	engine.LoadRule(adjustRule("recent", 5, "applicationDate", domain.OpGTE, domain.Date(cutoff), 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{
		"applicationDate": "2025-06-15T00:00:00Z",
	}))

	if !outcome.Results[0].Triggered {
		t.Errorf("expected date after cutoff to trigger: %+v", outcome.Results[0])
	}
}

func TestReloadRulesSwapsWholesale(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("old", 5, "creditScore", domain.OpGT, domain.Number(0), 1))

	if err := engine.ReloadRules([]*domain.RuleConfig{
		adjustRule("new", 5, "creditScore", domain.OpGT, domain.Number(0), 2),
	}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Fatalf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
	if engine.GetLoadedRules()[0].ID != "new" {
		t.Error("reload should replace the previous rule set")
	}
}

func TestReloadSkipsDisabled(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	disabled := adjustRule("off", 5, "creditScore", domain.OpGT, domain.Number(0), 1)
	disabled.Enabled = false

	if err := engine.ReloadRules([]*domain.RuleConfig{disabled}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("disabled rule should not load, got %d", engine.RulesCount())
	}
}

func TestExecutionRecords(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(adjustRule("credit-bonus", 5, "creditScore", domain.OpGT, domain.Number(700), 5))

	outcome := engine.Execute(context.Background(), record(map[string]any{"creditScore": 720.0}))
	records := ExecutionRecords("tenant-001", "decision-001", outcome.Results)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID == "" {
		t.Error("expected a generated record ID")
	}
	if rec.DecisionID != "decision-001" || rec.TenantID != "tenant-001" {
		t.Errorf("unexpected scoping: %+v", rec)
	}
	if !rec.Triggered {
		t.Error("expected triggered=true")
	}
	if rec.ScoreAdjustment != 5 {
		t.Errorf("expected scoreAdjustment 5, got %.2f", rec.ScoreAdjustment)
	}
	if rec.Result == "" {
		t.Error("expected serialized result payload")
	}
}
