// Package scoring turns raw applicant attributes into weighted points.
package scoring

import (
	"math"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates active scoring factors against applicant records.
// Factor configurations are loaded once and swapped wholesale on reload, so
// an evaluation always sees a consistent snapshot.
type Engine struct {
	mu      sync.RWMutex
	factors []*domain.ScoringFactorConfig
}

// NewEngine creates an empty scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// LoadFactors replaces the active factor set. Disabled factors are dropped;
// the configured order is preserved.
func (e *Engine) LoadFactors(configs []*domain.ScoringFactorConfig) {
	active := make([]*domain.ScoringFactorConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			active = append(active, cfg)
		}
	}

	e.mu.Lock()
	e.factors = active
	e.mu.Unlock()
}

// ReloadFactors swaps in a new factor set (hot reload).
func (e *Engine) ReloadFactors(configs []*domain.ScoringFactorConfig) {
	e.LoadFactors(configs)
}

// FactorCount returns the number of loaded factors.
func (e *Engine) FactorCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.factors)
}

// GetLoadedFactors returns the currently loaded factor configurations.
func (e *Engine) GetLoadedFactors() []*domain.ScoringFactorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.ScoringFactorConfig, len(e.factors))
	copy(out, e.factors)
	return out
}

// Calculate scores a record against the loaded factors. Pure function of
// (record, loaded factors): no side effects, no hidden state. The total is
// reported unclamped; clamping to the score scale happens downstream.
// Missing or mistyped field values skip the factor, never fail it.
func (e *Engine) Calculate(record domain.ApplicantRecord) *domain.ScoreSummary {
	e.mu.RLock()
	factors := e.factors
	e.mu.RUnlock()

	summary := &domain.ScoreSummary{
		Results:   make([]domain.FactorResult, 0, len(factors)),
		Breakdown: make(map[string]float64),
	}

	for _, cfg := range factors {
		summary.MaxScore += cfg.MaxPoints * cfg.Weight

		result := domain.FactorResult{
			FactorKey: cfg.FactorKey,
			Name:      cfg.Name,
			Category:  cfg.Category,
			MaxPoints: cfg.MaxPoints * cfg.Weight,
			Weight:    cfg.Weight,
		}

		raw, ok, reason := factorPoints(cfg, record)
		if !ok {
			result.Skipped = true
			result.Reason = reason
			summary.Results = append(summary.Results, result)
			continue
		}

		result.RawPoints = raw
		result.Points = raw * cfg.Weight
		summary.TotalScore += result.Points
		summary.Breakdown[cfg.Category] += result.Points
		summary.Results = append(summary.Results, result)
	}

	return summary
}

// factorPoints computes the unweighted points for one factor. The second
// return reports whether the factor applied at all.
func factorPoints(cfg *domain.ScoringFactorConfig, record domain.ApplicantRecord) (float64, bool, string) {
	value, present := record[cfg.FactorKey]
	if !present {
		return 0, false, "field not present"
	}

	switch cfg.CalculationType {
	case domain.CalcCategorical:
		s, ok := value.Str()
		if !ok {
			return 0, false, "field is not a string"
		}
		return cfg.Spec.Categories[s], true, ""

	case domain.CalcLinear:
		v, ok := value.Num()
		if !ok {
			return 0, false, "field is not numeric"
		}
		return linearPoints(cfg, v), true, ""

	case domain.CalcThreshold:
		v, ok := value.Num()
		if !ok {
			return 0, false, "field is not numeric"
		}
		return thresholdPoints(cfg.Spec.Ranges, v), true, ""

	case domain.CalcOptimal:
		v, ok := value.Num()
		if !ok {
			return 0, false, "field is not numeric"
		}
		return optimalPoints(cfg, v), true, ""

	default:
		return 0, false, "unknown calculation type"
	}
}

// linearPoints scales the value by the configured rate, capping the input
// first when a cap is set. Positive-max factors clamp to [0, maxPoints];
// negative-max factors are pure penalties and stay unclamped.
func linearPoints(cfg *domain.ScoringFactorConfig, v float64) float64 {
	if cfg.Spec.Cap > 0 && v > cfg.Spec.Cap {
		v = cfg.Spec.Cap
	}

	points := v * cfg.Spec.Rate

	if cfg.MaxPoints < 0 {
		return points
	}
	if points < 0 {
		return 0
	}
	if points > cfg.MaxPoints {
		return cfg.MaxPoints
	}
	return points
}

// thresholdPoints walks the configured ranges in order; the first range
// whose bounds contain the value wins. The order is the configurer's
// override mechanism, so ranges are never sorted here.
func thresholdPoints(ranges []domain.FactorRange, v float64) float64 {
	for _, r := range ranges {
		if r.Min != nil && v < *r.Min {
			continue
		}
		if r.Max != nil && v > *r.Max {
			continue
		}
		return r.Points
	}
	return 0
}

// optimalPoints decays linearly from maxPoints at the optimal value to zero
// at optimal +/- tolerance. Never negative.
func optimalPoints(cfg *domain.ScoringFactorConfig, v float64) float64 {
	distance := math.Abs(v - cfg.Spec.Optimal)
	if distance >= cfg.Spec.Tolerance {
		return 0
	}
	points := cfg.MaxPoints * (1 - distance/cfg.Spec.Tolerance)
	if points < 0 {
		return 0
	}
	return points
}
