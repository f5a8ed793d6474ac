// Package decision orchestrates scoring, range interpretation, and rule
// execution into a final creditworthiness decision.
package decision

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ranges"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// EngineVersion tags decisions with the pipeline revision that produced them.
const EngineVersion = "kestrel-1.0"

// Processor sequences the evaluation pipeline: scoring, interpretation,
// rules, then re-interpretation when the rules moved the score.
type Processor struct {
	scorer      *scoring.Engine
	interpreter *ranges.Interpreter
	rules       *rules.Engine
}

// NewProcessor creates a decision processor over the three engines.
func NewProcessor(scorer *scoring.Engine, interpreter *ranges.Interpreter, ruleEngine *rules.Engine) *Processor {
	return &Processor{
		scorer:      scorer,
		interpreter: interpreter,
		rules:       ruleEngine,
	}
}

// Input carries one applicant evaluation through the pipeline.
type Input struct {
	TenantID  string
	TraceID   string
	Record    domain.ApplicantRecord
	StartTime time.Time
}

// Process evaluates one applicant record and assembles the decision.
//
// A status override from the rules replaces the interpreted approval status
// unconditionally, and the risk level is then derived from the override
// rather than from the adjusted score's own tier. Override means override.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.Decision {
	start := time.Now()

	summary := p.scorer.Calculate(input.Record)
	scoringMs := time.Since(start).Milliseconds()

	// Credit scores are whole numbers; the factor totals are not. Round the
	// raw total before tier lookup so a fractional score never slips through
	// the seam between adjacent integer ranges.
	rawScore := math.Round(summary.TotalScore)
	baseScore := clamp(rawScore)
	interp := p.interpreter.Interpret(baseScore)

	rulesStart := time.Now()
	outcome := p.rules.Execute(ctx, input.Record)
	rulesMs := time.Since(rulesStart).Milliseconds()

	finalScore := baseScore
	if outcome.HasScoreAdjustment {
		// The delta applies to the raw total, clamped once at the end.
		finalScore = clamp(math.Round(rawScore + outcome.ScoreAdjustment))
		interp = p.interpreter.Interpret(finalScore)
	}

	status := interp.ApprovalStatus
	risk := interp.RiskLevel
	if outcome.StatusOverride != "" {
		status = outcome.StatusOverride
		risk = riskFromOverride(outcome.StatusOverride)
	}

	d := &domain.Decision{
		ID:              uuid.New().String(),
		TenantID:        input.TenantID,
		FinalScore:      finalScore,
		BaseScore:       baseScore,
		MaxScore:        summary.MaxScore,
		ApprovalStatus:  status,
		RiskLevel:       risk,
		Interpretation:  interp,
		FactorResults:   summary.Results,
		Breakdown:       summary.Breakdown,
		RuleResults:     outcome.Results,
		StatusOverride:  outcome.StatusOverride,
		LimitAdjustment: outcome.LimitAdjustment,
		Flags:           collectFlags(outcome.Results),
		Timestamp:       time.Now().UTC(),
	}
	if outcome.HasScoreAdjustment {
		d.ScoreAdjustment = outcome.ScoreAdjustment
	}

	d.Metadata = domain.DecisionMetadata{
		TraceID:          input.TraceID,
		ScoringMs:        scoringMs,
		RulesMs:          rulesMs,
		TotalMs:          time.Since(input.StartTime).Milliseconds(),
		FactorsEvaluated: len(summary.Results),
		RulesEvaluated:   len(outcome.Results),
		EngineVersion:    EngineVersion,
	}

	return d
}

// riskFromOverride derives the risk level once a rule overrode the status.
// The interpreter's risk level is deliberately ignored at this point.
func riskFromOverride(status string) string {
	switch status {
	case domain.StatusApproved:
		return domain.RiskLow
	case domain.StatusRejected:
		return domain.RiskHigh
	default:
		return domain.RiskMedium
	}
}

func collectFlags(results []domain.RuleResult) []string {
	var flags []string
	for _, r := range results {
		if r.Flagged {
			flags = append(flags, r.RuleName)
		}
	}
	return flags
}

func clamp(score float64) float64 {
	if score < domain.ScoreFloor {
		return domain.ScoreFloor
	}
	if score > domain.ScoreCeiling {
		return domain.ScoreCeiling
	}
	return score
}
