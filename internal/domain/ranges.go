package domain

import "time"

// ScoreRangeConfig maps an interval of total scores to a business outcome.
// A nil MaxScore means the range is unbounded above.
type ScoreRangeConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	MinScore    float64  `json:"minScore"`
	MaxScore    *float64 `json:"maxScore,omitempty"`

	ApprovalStatus string `json:"approvalStatus"`
	RiskLevel      string `json:"riskLevel"`

	// InterestRateAdjustment is in percentage points, signed.
	InterestRateAdjustment float64 `json:"interestRateAdjustment"`

	// LoanLimitAdjustment is a multiplier applied to the base loan limit.
	LoanLimitAdjustment float64 `json:"loanLimitAdjustment"`

	// Priority breaks ties when overlapping ranges match; lowest wins.
	Priority int `json:"priority"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Contains reports whether score falls inside the range.
func (r *ScoreRangeConfig) Contains(score float64) bool {
	if score < r.MinScore {
		return false
	}
	return r.MaxScore == nil || score <= *r.MaxScore
}

// ScoreInterpretation is the outcome attached to an interpreted score.
type ScoreInterpretation struct {
	RangeID                string  `json:"rangeId,omitempty"`
	Name                   string  `json:"name"`
	Description            string  `json:"description,omitempty"`
	Color                  string  `json:"color,omitempty"`
	ApprovalStatus         string  `json:"approvalStatus"`
	RiskLevel              string  `json:"riskLevel"`
	InterestRateAdjustment float64 `json:"interestRateAdjustment"`
	LoanLimitAdjustment    float64 `json:"loanLimitAdjustment"`
	Fallback               bool    `json:"fallback,omitempty"`
}

// Fallback outcome when no active range matches a score. The engine keeps
// operating in this degraded mode rather than failing the decision.
const (
	StatusManualReview = "Manual Review"
	RiskUnknown        = "Unknown"
)

// Canonical statuses and risk levels used by rules and range seeds.
const (
	StatusApproved = "Approved"
	StatusRejected = "Rejected"

	RiskLow    = "Low Risk"
	RiskMedium = "Medium Risk"
	RiskHigh   = "High Risk"
)

// RangeOverlap reports a pair of active ranges whose intervals intersect.
type RangeOverlap struct {
	FirstID    string `json:"firstId"`
	FirstName  string `json:"firstName"`
	SecondID   string `json:"secondId"`
	SecondName string `json:"secondName"`
}

// RangeGap reports uncovered scores between two consecutive ranges.
type RangeGap struct {
	From      float64 `json:"from"`
	To        float64 `json:"to"`
	AfterName string  `json:"afterName"`
}

// RangeValidationReport is the result of checking that active ranges
// partition the score scale.
type RangeValidationReport struct {
	IsValid  bool           `json:"isValid"`
	Overlaps []RangeOverlap `json:"overlaps"`
	Gaps     []RangeGap     `json:"gaps"`
}

// Validate checks shape and numeric bounds before persisting.
func (r *ScoreRangeConfig) Validate() *ValidationError {
	ve := &ValidationError{}
	if r.Name == "" {
		ve.Add("name", "name is required")
	}
	if r.MinScore < ScoreFloor || r.MinScore > ScoreCeiling {
		ve.Addf("minScore", "minScore must be between %.0f and %.0f", ScoreFloor, ScoreCeiling)
	}
	if r.MaxScore != nil {
		if *r.MaxScore < ScoreFloor || *r.MaxScore > ScoreCeiling {
			ve.Addf("maxScore", "maxScore must be between %.0f and %.0f", ScoreFloor, ScoreCeiling)
		}
		if *r.MaxScore < r.MinScore {
			ve.Add("maxScore", "maxScore must not be below minScore")
		}
	}
	if r.ApprovalStatus == "" {
		ve.Add("approvalStatus", "approvalStatus is required")
	}
	if r.RiskLevel == "" {
		ve.Add("riskLevel", "riskLevel is required")
	}
	if r.InterestRateAdjustment < MinRateAdjustment || r.InterestRateAdjustment > MaxRateAdjustment {
		ve.Addf("interestRateAdjustment", "interestRateAdjustment must be between %.0f and %.0f", MinRateAdjustment, MaxRateAdjustment)
	}
	if r.LoanLimitAdjustment < MinLimitMultiplier || r.LoanLimitAdjustment > MaxLimitMultiplier {
		ve.Addf("loanLimitAdjustment", "loanLimitAdjustment must be between %.0f and %.0f", MinLimitMultiplier, MaxLimitMultiplier)
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		ve.Addf("priority", "priority must be between %d and %d", MinPriority, MaxPriority)
	}
	if ve.Empty() {
		return nil
	}
	return ve
}
