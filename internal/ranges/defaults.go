package ranges

import "github.com/opensource-finance/kestrel/internal/domain"

func f(v float64) *float64 { return &v }

// DefaultRanges returns the canonical five-tier partition of the score
// scale. Seeding these and validating yields a clean report: no overlaps,
// no gaps.
func DefaultRanges() []*domain.ScoreRangeConfig {
	return []*domain.ScoreRangeConfig{
		{
			ID:                     "range-excellent",
			Name:                   "Excellent",
			Description:            "Prime applicants with the best terms",
			Color:                  "#15803d",
			MinScore:               750,
			MaxScore:               f(850),
			ApprovalStatus:         domain.StatusApproved,
			RiskLevel:              domain.RiskLow,
			InterestRateAdjustment: -1.5,
			LoanLimitAdjustment:    1.5,
			Priority:               1,
			Enabled:                true,
		},
		{
			ID:                     "range-good",
			Name:                   "Good",
			Description:            "Approved at standard terms",
			Color:                  "#65a30d",
			MinScore:               700,
			MaxScore:               f(749),
			ApprovalStatus:         domain.StatusApproved,
			RiskLevel:              domain.RiskLow,
			InterestRateAdjustment: -0.5,
			LoanLimitAdjustment:    1.2,
			Priority:               2,
			Enabled:                true,
		},
		{
			ID:                     "range-fair",
			Name:                   "Fair",
			Description:            "Approved with a rate premium",
			Color:                  "#ca8a04",
			MinScore:               650,
			MaxScore:               f(699),
			ApprovalStatus:         domain.StatusApproved,
			RiskLevel:              domain.RiskMedium,
			InterestRateAdjustment: 1.0,
			LoanLimitAdjustment:    1.0,
			Priority:               3,
			Enabled:                true,
		},
		{
			ID:                     "range-poor",
			Name:                   "Poor",
			Description:            "Requires manual review",
			Color:                  "#ea580c",
			MinScore:               600,
			MaxScore:               f(649),
			ApprovalStatus:         domain.StatusManualReview,
			RiskLevel:              domain.RiskMedium,
			InterestRateAdjustment: 2.5,
			LoanLimitAdjustment:    0.8,
			Priority:               4,
			Enabled:                true,
		},
		{
			ID:                     "range-very-poor",
			Name:                   "Very Poor",
			Description:            "Declined at current score",
			Color:                  "#dc2626",
			MinScore:               300,
			MaxScore:               f(599),
			ApprovalStatus:         domain.StatusRejected,
			RiskLevel:              domain.RiskHigh,
			InterestRateAdjustment: 4.0,
			LoanLimitAdjustment:    0.5,
			Priority:               5,
			Enabled:                true,
		},
	}
}
