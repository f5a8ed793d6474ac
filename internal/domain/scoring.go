package domain

import "time"

// CalculationType selects how a factor's raw value becomes points.
type CalculationType string

const (
	CalcLinear      CalculationType = "linear"
	CalcThreshold   CalculationType = "threshold"
	CalcCategorical CalculationType = "categorical"
	CalcOptimal     CalculationType = "optimal"
)

// ScoringFactorConfig defines one scoring dimension over an applicant field.
type ScoringFactorConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	// FactorKey names the ApplicantRecord field this factor reads.
	FactorKey string `json:"factorKey"`
	Name      string `json:"name"`
	Category  string `json:"category"`

	// MaxPoints is signed: negative for pure penalty factors.
	MaxPoints float64 `json:"maxPoints"`

	// Weight multiplies raw points before summation, typically 0.1-3.0.
	Weight float64 `json:"weight"`

	CalculationType CalculationType `json:"calculationType"`
	Spec            FactorSpec      `json:"spec"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// FactorSpec holds the calculation-specific parameters. Only the fields for
// the configured calculation type are consulted.
type FactorSpec struct {
	// linear: points = clamp(min(value, Cap) * Rate, 0, maxPoints).
	// A zero Cap means no cap. Negative maxPoints skips the clamp and the
	// product is added as a deduction.
	Rate float64 `json:"rate,omitempty"`
	Cap  float64 `json:"cap,omitempty"`

	// threshold: ordered ranges, first match wins. Evaluation order is the
	// configured order, never sorted.
	Ranges []FactorRange `json:"ranges,omitempty"`

	// categorical: exact string match to points; unmatched values score 0.
	Categories map[string]float64 `json:"categories,omitempty"`

	// optimal: points decay linearly from maxPoints at Optimal to 0 at
	// Optimal +/- Tolerance.
	Optimal   float64 `json:"optimal,omitempty"`
	Tolerance float64 `json:"tolerance,omitempty"`
}

// FactorRange is one band of a threshold factor.
type FactorRange struct {
	Label  string   `json:"label"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Points float64  `json:"points"`
}

// FactorResult is the contribution of one factor to the total score.
type FactorResult struct {
	FactorKey string  `json:"factorKey"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	RawPoints float64 `json:"rawPoints"`
	Points    float64 `json:"points"`    // rawPoints * weight
	MaxPoints float64 `json:"maxPoints"` // maxPoints * weight
	Weight    float64 `json:"weight"`
	Skipped   bool    `json:"skipped,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// ScoreSummary is the output of the scoring engine. TotalScore is reported
// unclamped; clamping to the score scale happens in the orchestrator.
type ScoreSummary struct {
	TotalScore float64                  `json:"totalScore"`
	MaxScore   float64                  `json:"maxScore"`
	Results    []FactorResult           `json:"results"`
	Breakdown  map[string]float64       `json:"breakdown"` // category subtotals
}

// Validate checks shape and numeric bounds before persisting.
func (c *ScoringFactorConfig) Validate() *ValidationError {
	ve := &ValidationError{}
	if c.FactorKey == "" {
		ve.Add("factorKey", "factorKey is required")
	}
	if c.Name == "" {
		ve.Add("name", "name is required")
	}
	if c.Weight < MinWeight || c.Weight > MaxWeight {
		ve.Addf("weight", "weight must be between %.1f and %.1f", MinWeight, MaxWeight)
	}
	switch c.CalculationType {
	case CalcLinear:
		if c.Spec.Rate == 0 {
			ve.Add("spec.rate", "linear factors require a non-zero rate")
		}
	case CalcThreshold:
		if len(c.Spec.Ranges) == 0 {
			ve.Add("spec.ranges", "threshold factors require at least one range")
		}
	case CalcCategorical:
		if len(c.Spec.Categories) == 0 {
			ve.Add("spec.categories", "categorical factors require at least one category")
		}
	case CalcOptimal:
		if c.Spec.Tolerance <= 0 {
			ve.Add("spec.tolerance", "optimal factors require a positive tolerance")
		}
	default:
		ve.Addf("calculationType", "unknown calculation type %q", c.CalculationType)
	}
	if ve.Empty() {
		return nil
	}
	return ve
}
