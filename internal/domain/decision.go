package domain

import "time"

// Decision is the complete output of one applicant evaluation.
// It is transient from the core's point of view; persistence of the audit
// copy is best-effort and happens off the request path.
type Decision struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	// FinalScore is clamped to [ScoreFloor, ScoreCeiling].
	FinalScore float64 `json:"finalScore"`

	// BaseScore is the scoring engine's total before rule adjustment,
	// also clamped to the scale.
	BaseScore float64 `json:"baseScore"`
	MaxScore  float64 `json:"maxScore"`

	ApprovalStatus string `json:"approvalStatus"`
	RiskLevel      string `json:"riskLevel"`

	Interpretation ScoreInterpretation `json:"interpretation"`

	FactorResults []FactorResult     `json:"factorResults"`
	Breakdown     map[string]float64 `json:"breakdown"`

	RuleResults     []RuleResult `json:"ruleResults"`
	ScoreAdjustment float64      `json:"scoreAdjustment,omitempty"`
	LimitAdjustment float64      `json:"limitAdjustment,omitempty"`
	StatusOverride  string       `json:"statusOverride,omitempty"`
	Flags           []string     `json:"flags,omitempty"`

	Timestamp time.Time        `json:"timestamp"`
	Metadata  DecisionMetadata `json:"metadata"`
}

// DecisionMetadata carries processing information for observability.
type DecisionMetadata struct {
	TraceID          string `json:"traceId,omitempty"`
	ScoringMs        int64  `json:"scoringMs"`
	RulesMs          int64  `json:"rulesMs"`
	TotalMs          int64  `json:"totalMs"`
	FactorsEvaluated int    `json:"factorsEvaluated"`
	RulesEvaluated   int    `json:"rulesEvaluated"`
	EngineVersion    string `json:"engineVersion"`
}
