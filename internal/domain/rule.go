package domain

import "time"

// RuleType groups rules by the business concern they serve.
type RuleType string

const (
	RuleEligibility RuleType = "eligibility"
	RuleRisk        RuleType = "risk"
	RulePricing     RuleType = "pricing"
	RuleLimit       RuleType = "limit"
)

// Operator is the comparison operator of a rule condition.
type Operator string

const (
	OpGT         Operator = ">"
	OpLT         Operator = "<"
	OpGTE        Operator = ">="
	OpLTE        Operator = "<="
	OpEQ         Operator = "=="
	OpNEQ        Operator = "!="
	OpIncludes   Operator = "includes"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

// KnownOperator reports whether op is part of the closed operator set.
func KnownOperator(op Operator) bool {
	switch op {
	case OpGT, OpLT, OpGTE, OpLTE, OpEQ, OpNEQ, OpIncludes, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// Condition is a single comparison over one applicant field. Conditions are
// compiled once at load time, not re-interpreted per evaluation.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// ActionType is the effect a triggered rule has on the decision.
type ActionType string

const (
	ActionApprove     ActionType = "approve"
	ActionReject      ActionType = "reject"
	ActionFlag        ActionType = "flag"
	ActionAdjustScore ActionType = "adjust_score"
	ActionAdjustLimit ActionType = "adjust_limit"

	// ActionUnknown marks executions that failed before the action ran.
	ActionUnknown ActionType = "unknown"
)

// KnownAction reports whether a is a configurable action kind.
func KnownAction(a ActionType) bool {
	switch a {
	case ActionApprove, ActionReject, ActionFlag, ActionAdjustScore, ActionAdjustLimit:
		return true
	}
	return false
}

// Action is the payload executed when a rule triggers.
type Action struct {
	Type ActionType `json:"type"`

	// Adjustment is the score or limit delta for adjust_* actions.
	Adjustment float64 `json:"adjustment,omitempty"`

	// Reason is recorded on the rule result and surfaced to callers.
	Reason string `json:"reason,omitempty"`

	// Multiplier optionally scales the adjustment. Zero means unscaled.
	Multiplier float64 `json:"multiplier,omitempty"`

	// Cap optionally bounds the absolute adjust_limit delta.
	Cap float64 `json:"cap,omitempty"`
}

// RuleConfig is a condition/action pair evaluated against applicant records.
type RuleConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        RuleType `json:"type"`
	Category    string   `json:"category,omitempty"`

	Condition Condition `json:"condition"`
	Action    Action    `json:"action"`

	// Priority 1-10; higher priorities are evaluated first.
	Priority int     `json:"priority"`
	Weight   float64 `json:"weight"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RuleResult is the outcome of evaluating one rule against one record.
type RuleResult struct {
	RuleID    string     `json:"ruleId"`
	RuleName  string     `json:"ruleName"`
	Triggered bool       `json:"triggered"`
	Action    ActionType `json:"action"`

	ScoreAdjustment float64 `json:"scoreAdjustment,omitempty"`
	LimitAdjustment float64 `json:"limitAdjustment,omitempty"`
	StatusOverride  string  `json:"statusOverride,omitempty"`
	Flagged         bool    `json:"flagged,omitempty"`

	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	ProcessMs int64  `json:"processMs,omitempty"`
}

// RuleOutcome aggregates all rule results for one evaluation.
// ScoreAdjustment sums every adjust_score effect; StatusOverride is the last
// approve/reject evaluated; LimitAdjustment sums every adjust_limit effect.
type RuleOutcome struct {
	Results []RuleResult `json:"results"`

	ScoreAdjustment    float64 `json:"scoreAdjustment,omitempty"`
	HasScoreAdjustment bool    `json:"hasScoreAdjustment,omitempty"`
	StatusOverride     string  `json:"statusOverride,omitempty"`
	LimitAdjustment    float64 `json:"limitAdjustment,omitempty"`
	HasLimitAdjustment bool    `json:"hasLimitAdjustment,omitempty"`
}

// RuleExecutionRecord is the append-only audit entry for one rule evaluated
// against one applicant. Never mutated after the fact.
type RuleExecutionRecord struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId,omitempty"`
	DecisionID string `json:"decisionId"`
	RuleID     string `json:"ruleId"`

	Triggered bool   `json:"triggered"`
	Result    string `json:"result"` // serialized RuleResult payload

	ScoreAdjustment float64 `json:"scoreAdjustment,omitempty"`
	StatusOverride  string  `json:"statusOverride,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks shape and numeric bounds before persisting.
func (c *RuleConfig) Validate() *ValidationError {
	ve := &ValidationError{}
	if c.Name == "" {
		ve.Add("name", "name is required")
	}
	switch c.Type {
	case RuleEligibility, RuleRisk, RulePricing, RuleLimit:
	default:
		ve.Addf("type", "unknown rule type %q", c.Type)
	}
	if c.Condition.Field == "" {
		ve.Add("condition.field", "condition field is required")
	}
	if !KnownOperator(c.Condition.Operator) {
		ve.Addf("condition.operator", "unknown operator %q", c.Condition.Operator)
	}
	if !KnownAction(c.Action.Type) {
		ve.Addf("action.type", "unknown action %q", c.Action.Type)
	}
	if c.Priority < MinPriority || c.Priority > MaxPriority {
		ve.Addf("priority", "priority must be between %d and %d", MinPriority, MaxPriority)
	}
	if c.Weight < MinWeight || c.Weight > MaxWeight {
		ve.Addf("weight", "weight must be between %.1f and %.1f", MinWeight, MaxWeight)
	}
	if ve.Empty() {
		return nil
	}
	return ve
}
