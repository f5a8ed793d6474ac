package scoring

import "github.com/opensource-finance/kestrel/internal/domain"

func f(v float64) *float64 { return &v }

// DefaultFactors returns the stock factor set installed by the seed
// endpoint. The positive factors' weighted max points sum to 850 so an
// ideal applicant lands at the top of the scale; delinquencies only deduct.
func DefaultFactors() []*domain.ScoringFactorConfig {
	return []*domain.ScoringFactorConfig{
		{
			ID:              "factor-credit-score",
			FactorKey:       "creditScore",
			Name:            "Credit Score",
			Category:        "credit_history",
			MaxPoints:       300,
			Weight:          1.0,
			CalculationType: domain.CalcThreshold,
			Spec: domain.FactorSpec{
				Ranges: []domain.FactorRange{
					{Label: "excellent", Min: f(750), Points: 300},
					{Label: "good", Min: f(700), Max: f(749), Points: 255},
					{Label: "fair", Min: f(650), Max: f(699), Points: 210},
					{Label: "poor", Min: f(600), Max: f(649), Points: 150},
					{Label: "very poor", Max: f(599), Points: 75},
				},
			},
			Enabled: true,
		},
		{
			ID:              "factor-annual-income",
			FactorKey:       "annualIncome",
			Name:            "Annual Income",
			Category:        "capacity",
			MaxPoints:       150,
			Weight:          1.0,
			CalculationType: domain.CalcLinear,
			Spec: domain.FactorSpec{
				Rate: 0.0015,
				Cap:  100000,
			},
			Enabled: true,
		},
		{
			ID:              "factor-dti",
			FactorKey:       "debtToIncome",
			Name:            "Debt-to-Income Ratio",
			Category:        "capacity",
			MaxPoints:       120,
			Weight:          1.0,
			CalculationType: domain.CalcThreshold,
			Spec: domain.FactorSpec{
				Ranges: []domain.FactorRange{
					{Label: "low", Max: f(0.2), Points: 120},
					{Label: "moderate", Min: f(0.2), Max: f(0.36), Points: 90},
					{Label: "elevated", Min: f(0.36), Max: f(0.5), Points: 45},
					{Label: "high", Min: f(0.5), Points: 0},
				},
			},
			Enabled: true,
		},
		{
			ID:              "factor-employment-years",
			FactorKey:       "employmentYears",
			Name:            "Years Employed",
			Category:        "stability",
			MaxPoints:       80,
			Weight:          1.0,
			CalculationType: domain.CalcLinear,
			Spec: domain.FactorSpec{
				Rate: 8,
				Cap:  10,
			},
			Enabled: true,
		},
		{
			ID:              "factor-employment-status",
			FactorKey:       "employmentStatus",
			Name:            "Employment Status",
			Category:        "stability",
			MaxPoints:       70,
			Weight:          1.0,
			CalculationType: domain.CalcCategorical,
			Spec: domain.FactorSpec{
				Categories: map[string]float64{
					"employed":      70,
					"self_employed": 55,
					"retired":       45,
					"student":       25,
					"unemployed":    0,
				},
			},
			Enabled: true,
		},
		{
			ID:              "factor-loan-amount",
			FactorKey:       "loanAmount",
			Name:            "Requested Loan Amount",
			Category:        "exposure",
			MaxPoints:       80,
			Weight:          1.0,
			CalculationType: domain.CalcOptimal,
			Spec: domain.FactorSpec{
				Optimal:   15000,
				Tolerance: 35000,
			},
			Enabled: true,
		},
		{
			ID:              "factor-loan-purpose",
			FactorKey:       "loanPurpose",
			Name:            "Loan Purpose",
			Category:        "exposure",
			MaxPoints:       50,
			Weight:          1.0,
			CalculationType: domain.CalcCategorical,
			Spec: domain.FactorSpec{
				Categories: map[string]float64{
					"home_improvement":   50,
					"debt_consolidation": 40,
					"education":          40,
					"auto":               35,
					"medical":            30,
					"other":              20,
				},
			},
			Enabled: true,
		},
		{
			// Pure penalty: negative max skips the clamp and each recorded
			// delinquency deducts points.
			ID:              "factor-delinquencies",
			FactorKey:       "delinquencies",
			Name:            "Recent Delinquencies",
			Category:        "credit_history",
			MaxPoints:       -100,
			Weight:          1.0,
			CalculationType: domain.CalcLinear,
			Spec: domain.FactorSpec{
				Rate: -25,
				Cap:  10,
			},
			Enabled: true,
		},
	}
}
