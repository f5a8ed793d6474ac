// Package ranges maps total scores to named tiers with business outcomes.
package ranges

import (
	"sort"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Interpreter resolves a total score to the active range that contains it.
// Range configurations are swapped wholesale on reload so an evaluation
// always sees a consistent snapshot.
type Interpreter struct {
	mu     sync.RWMutex
	ranges []*domain.ScoreRangeConfig
}

// NewInterpreter creates an empty interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// LoadRanges replaces the active range set, dropping disabled entries.
func (i *Interpreter) LoadRanges(configs []*domain.ScoreRangeConfig) {
	active := make([]*domain.ScoreRangeConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			active = append(active, cfg)
		}
	}

	i.mu.Lock()
	i.ranges = active
	i.mu.Unlock()
}

// ReloadRanges swaps in a new range set (hot reload).
func (i *Interpreter) ReloadRanges(configs []*domain.ScoreRangeConfig) {
	i.LoadRanges(configs)
}

// RangeCount returns the number of loaded ranges.
func (i *Interpreter) RangeCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.ranges)
}

// GetLoadedRanges returns the currently loaded range configurations.
func (i *Interpreter) GetLoadedRanges() []*domain.ScoreRangeConfig {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*domain.ScoreRangeConfig, len(i.ranges))
	copy(out, i.ranges)
	return out
}

// Interpret selects the range containing score. When overlapping ranges
// match, the lowest priority number wins. When none match, a fixed
// manual-review fallback is returned instead of an error so the engine can
// operate degraded.
func (i *Interpreter) Interpret(score float64) domain.ScoreInterpretation {
	i.mu.RLock()
	ranges := i.ranges
	i.mu.RUnlock()

	var best *domain.ScoreRangeConfig
	for _, r := range ranges {
		if !r.Contains(score) {
			continue
		}
		if best == nil || r.Priority < best.Priority {
			best = r
		}
	}

	if best == nil {
		return domain.ScoreInterpretation{
			Name:                "Unknown",
			Description:         "no active score range matched",
			ApprovalStatus:      domain.StatusManualReview,
			RiskLevel:           domain.RiskUnknown,
			LoanLimitAdjustment: 1.0,
			Fallback:            true,
		}
	}

	return domain.ScoreInterpretation{
		RangeID:                best.ID,
		Name:                   best.Name,
		Description:            best.Description,
		Color:                  best.Color,
		ApprovalStatus:         best.ApprovalStatus,
		RiskLevel:              best.RiskLevel,
		InterestRateAdjustment: best.InterestRateAdjustment,
		LoanLimitAdjustment:    best.LoanLimitAdjustment,
	}
}

// Validate checks that the active ranges partition the score scale without
// overlaps or gaps. Used by configuration management, not the hot path.
func (i *Interpreter) Validate() *domain.RangeValidationReport {
	i.mu.RLock()
	ranges := make([]*domain.ScoreRangeConfig, len(i.ranges))
	copy(ranges, i.ranges)
	i.mu.RUnlock()

	return ValidateRanges(ranges)
}

// ValidateRanges reports every overlapping pair and every gap between
// consecutive active ranges, sorted by minScore. Adjacent integer intervals
// [a,b] and [b+1,...] count as gapless.
func ValidateRanges(configs []*domain.ScoreRangeConfig) *domain.RangeValidationReport {
	report := &domain.RangeValidationReport{
		Overlaps: []domain.RangeOverlap{},
		Gaps:     []domain.RangeGap{},
	}

	active := make([]*domain.ScoreRangeConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			active = append(active, cfg)
		}
	}

	sort.SliceStable(active, func(a, b int) bool {
		return active[a].MinScore < active[b].MinScore
	})

	for x := 0; x < len(active); x++ {
		for y := x + 1; y < len(active); y++ {
			if intervalsOverlap(active[x], active[y]) {
				report.Overlaps = append(report.Overlaps, domain.RangeOverlap{
					FirstID:    active[x].ID,
					FirstName:  active[x].Name,
					SecondID:   active[y].ID,
					SecondName: active[y].Name,
				})
			}
		}
	}

	for x := 0; x+1 < len(active); x++ {
		cur, next := active[x], active[x+1]
		if cur.MaxScore == nil {
			// Unbounded above: nothing after it can be a gap.
			break
		}
		if next.MinScore > *cur.MaxScore+1 {
			report.Gaps = append(report.Gaps, domain.RangeGap{
				From:      *cur.MaxScore + 1,
				To:        next.MinScore - 1,
				AfterName: cur.Name,
			})
		}
	}

	report.IsValid = len(report.Overlaps) == 0 && len(report.Gaps) == 0
	return report
}

func intervalsOverlap(a, b *domain.ScoreRangeConfig) bool {
	// a precedes b by minScore order.
	if a.MaxScore == nil {
		return true
	}
	return b.MinScore <= *a.MaxScore
}
