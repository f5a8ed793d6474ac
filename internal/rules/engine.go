// Package rules provides the CEL-Go based rule evaluation engine.
package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates rule conditions against applicant records. Structured
// conditions are compiled to CEL programs once at load time, so invalid
// configurations are rejected eagerly instead of failing per-record.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule
	ordered  []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program for one rule.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("applicant", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule's condition without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a single rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiled[cfg.ID] = compiled
	e.reorder()
	e.mu.Unlock()

	return nil
}

// LoadRules compiles and loads the enabled rules from configs.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := e.LoadRule(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	next := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.mu.Lock()
	e.compiled = next
	e.reorder()
	e.mu.Unlock()

	return nil
}

// reorder rebuilds the evaluation order: descending priority, creation time
// as the stable tie-break. Caller must hold the write lock.
func (e *Engine) reorder() {
	ordered := make([]*CompiledRule, 0, len(e.compiled))
	for _, r := range e.compiled {
		ordered = append(ordered, r)
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].Config.Priority != ordered[b].Config.Priority {
			return ordered[a].Config.Priority > ordered[b].Config.Priority
		}
		return ordered[a].Config.CreatedAt.Before(ordered[b].Config.CreatedAt)
	})
	e.ordered = ordered
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the loaded rule configurations in evaluation order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.RuleConfig, len(e.ordered))
	for i, r := range e.ordered {
		out[i] = r.Config
	}
	return out
}

// Execute evaluates all loaded rules against the record in priority order
// and aggregates their effects. The score and limit deltas are sums over
// every triggered adjust rule; the status override is the last approve or
// reject evaluated, deliberately overwriting earlier ones. A rule that
// fails to evaluate is recorded with an error reason and never aborts the
// remaining rules.
func (e *Engine) Execute(ctx context.Context, record domain.ApplicantRecord) *domain.RuleOutcome {
	e.mu.RLock()
	snapshot := make([]*CompiledRule, len(e.ordered))
	copy(snapshot, e.ordered)
	e.mu.RUnlock()

	activation := map[string]any{
		"applicant": record.Activation(),
	}

	outcome := &domain.RuleOutcome{
		Results: make([]domain.RuleResult, 0, len(snapshot)),
	}

	for _, rule := range snapshot {
		result := e.evaluateRule(rule, activation)

		if result.Triggered {
			applyAction(outcome, rule.Config, &result)
		}

		outcome.Results = append(outcome.Results, result)
	}

	if outcome.ScoreAdjustment == 0 {
		outcome.HasScoreAdjustment = false
	}

	return outcome
}

// evaluateRule runs one compiled condition and returns its result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID:   rule.Config.ID,
		RuleName: rule.Config.Name,
		Action:   rule.Config.Action.Type,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Action = domain.ActionUnknown
		result.Error = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	triggered, ok := out.(types.Bool)
	if !ok {
		result.Action = domain.ActionUnknown
		result.Error = fmt.Sprintf("condition returned %T, expected bool", out)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	result.Triggered = bool(triggered)
	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

// applyAction folds one triggered rule's action into the running outcome.
func applyAction(outcome *domain.RuleOutcome, cfg *domain.RuleConfig, result *domain.RuleResult) {
	result.Reason = cfg.Action.Reason

	switch cfg.Action.Type {
	case domain.ActionApprove:
		result.StatusOverride = domain.StatusApproved
		outcome.StatusOverride = domain.StatusApproved

	case domain.ActionReject:
		result.StatusOverride = domain.StatusRejected
		outcome.StatusOverride = domain.StatusRejected

	case domain.ActionFlag:
		result.Flagged = true

	case domain.ActionAdjustScore:
		delta := cfg.Action.Adjustment
		if cfg.Action.Multiplier != 0 {
			delta *= cfg.Action.Multiplier
		}
		result.ScoreAdjustment = delta
		outcome.ScoreAdjustment += delta
		outcome.HasScoreAdjustment = true

	case domain.ActionAdjustLimit:
		delta := cfg.Action.Adjustment
		if cfg.Action.Multiplier != 0 {
			delta *= cfg.Action.Multiplier
		}
		result.LimitAdjustment = delta
		outcome.LimitAdjustment += delta
		outcome.HasLimitAdjustment = true
		if cap := cfg.Action.Cap; cap > 0 && math.Abs(outcome.LimitAdjustment) > cap {
			outcome.LimitAdjustment = math.Copysign(cap, outcome.LimitAdjustment)
		}
	}
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	e.ordered = nil
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	expr, err := conditionExpr(cfg.Condition)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", cfg.ID, err)
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: condition must produce bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}
