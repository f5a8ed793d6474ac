package scoring

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func linearFactor(id, key string, maxPoints, weight, rate, cap float64) *domain.ScoringFactorConfig {
	return &domain.ScoringFactorConfig{
		ID:              id,
		FactorKey:       key,
		Name:            id,
		Category:        "test",
		MaxPoints:       maxPoints,
		Weight:          weight,
		CalculationType: domain.CalcLinear,
		Spec:            domain.FactorSpec{Rate: rate, Cap: cap},
		Enabled:         true,
	}
}

func TestEngineStartsEmpty(t *testing.T) {
	engine := NewEngine()

	if engine.FactorCount() != 0 {
		t.Errorf("expected 0 factors, got %d", engine.FactorCount())
	}

	summary := engine.Calculate(domain.ApplicantRecord{"creditScore": domain.Number(700)})
	if summary.TotalScore != 0 {
		t.Errorf("expected 0 total with no factors, got %.2f", summary.TotalScore)
	}
	if summary.MaxScore != 0 {
		t.Errorf("expected 0 maxScore with no factors, got %.2f", summary.MaxScore)
	}
}

func TestLoadFactorsDropsDisabled(t *testing.T) {
	engine := NewEngine()

	enabled := linearFactor("f-1", "a", 100, 1.0, 1, 0)
	disabled := linearFactor("f-2", "b", 100, 1.0, 1, 0)
	disabled.Enabled = false

	engine.LoadFactors([]*domain.ScoringFactorConfig{enabled, disabled})

	if engine.FactorCount() != 1 {
		t.Errorf("expected 1 active factor, got %d", engine.FactorCount())
	}
}

func TestLinearFactorCapsInput(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		linearFactor("income", "annualIncome", 300000, 1.5, 2, 100000),
	})

	summary := engine.Calculate(domain.ApplicantRecord{
		"annualIncome": domain.Number(120000),
	})

	// Capped at 100000 before the rate applies: 100000 * 2 * 1.5
	want := 100000.0 * 2 * 1.5
	if summary.TotalScore != want {
		t.Errorf("expected %.2f from capped income, got %.2f", want, summary.TotalScore)
	}
}

func TestLinearFactorClampsToMaxPoints(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		linearFactor("years", "employmentYears", 80, 1.0, 8, 0),
	})

	summary := engine.Calculate(domain.ApplicantRecord{
		"employmentYears": domain.Number(30),
	})

	if summary.TotalScore != 80 {
		t.Errorf("expected clamp to 80, got %.2f", summary.TotalScore)
	}
}

func TestLinearPenaltyFactorUnclamped(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		linearFactor("delinq", "delinquencies", -100, 1.0, -25, 0),
	})

	summary := engine.Calculate(domain.ApplicantRecord{
		"delinquencies": domain.Number(6),
	})

	// Negative maxPoints skips the clamp: the full deduction applies.
	if summary.TotalScore != -150 {
		t.Errorf("expected -150 penalty, got %.2f", summary.TotalScore)
	}
}

func TestThresholdFactorFirstMatchWins(t *testing.T) {
	low, high := 600.0, 750.0
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		{
			ID:              "credit",
			FactorKey:       "creditScore",
			Name:            "Credit Score",
			Category:        "credit",
			MaxPoints:       300,
			Weight:          1.0,
			CalculationType: domain.CalcThreshold,
			Spec: domain.FactorSpec{
				Ranges: []domain.FactorRange{
					{Label: "excellent", Min: &high, Points: 300},
					// Deliberately overlapping: configured order wins.
					{Label: "anything", Min: &low, Points: 150},
					{Label: "floor", Points: 50},
				},
			},
			Enabled: true,
		},
	})

	cases := []struct {
		score float64
		want  float64
	}{
		{800, 300},
		{750, 300},
		{700, 150},
		{500, 50},
	}
	for _, tc := range cases {
		summary := engine.Calculate(domain.ApplicantRecord{"creditScore": domain.Number(tc.score)})
		if summary.TotalScore != tc.want {
			t.Errorf("creditScore %.0f: expected %.0f points, got %.2f", tc.score, tc.want, summary.TotalScore)
		}
	}
}

func TestCategoricalFactor(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		{
			ID:              "status",
			FactorKey:       "employmentStatus",
			Name:            "Employment Status",
			Category:        "stability",
			MaxPoints:       70,
			Weight:          1.0,
			CalculationType: domain.CalcCategorical,
			Spec: domain.FactorSpec{
				Categories: map[string]float64{"employed": 70, "retired": 45},
			},
			Enabled: true,
		},
	})

	summary := engine.Calculate(domain.ApplicantRecord{"employmentStatus": domain.Text("employed")})
	if summary.TotalScore != 70 {
		t.Errorf("expected 70 for employed, got %.2f", summary.TotalScore)
	}

	// Unmatched category scores 0 but is not skipped.
	summary = engine.Calculate(domain.ApplicantRecord{"employmentStatus": domain.Text("contractor")})
	if summary.TotalScore != 0 {
		t.Errorf("expected 0 for unmatched category, got %.2f", summary.TotalScore)
	}
	if summary.Results[0].Skipped {
		t.Error("unmatched category should not mark the factor skipped")
	}
}

func TestOptimalFactorDecay(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		{
			ID:              "loan",
			FactorKey:       "loanAmount",
			Name:            "Loan Amount",
			Category:        "exposure",
			MaxPoints:       100,
			Weight:          1.0,
			CalculationType: domain.CalcOptimal,
			Spec:            domain.FactorSpec{Optimal: 10000, Tolerance: 5000},
			Enabled:         true,
		},
	})

	cases := []struct {
		value float64
		want  float64
	}{
		{10000, 100}, // at the optimal
		{12500, 50},  // halfway to tolerance
		{7500, 50},   // symmetric below
		{15000, 0},   // at tolerance edge
		{40000, 0},   // far beyond, never negative
	}
	for _, tc := range cases {
		summary := engine.Calculate(domain.ApplicantRecord{"loanAmount": domain.Number(tc.value)})
		if summary.TotalScore != tc.want {
			t.Errorf("loanAmount %.0f: expected %.0f, got %.2f", tc.value, tc.want, summary.TotalScore)
		}
	}
}

func TestMissingFieldSkipsFactor(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		linearFactor("income", "annualIncome", 100, 1.0, 0.001, 0),
	})

	summary := engine.Calculate(domain.ApplicantRecord{})

	if summary.TotalScore != 0 {
		t.Errorf("expected 0 with missing field, got %.2f", summary.TotalScore)
	}
	if len(summary.Results) != 1 || !summary.Results[0].Skipped {
		t.Fatal("expected a skipped factor result")
	}
	// MaxScore still counts the factor as a normalization reference.
	if summary.MaxScore != 100 {
		t.Errorf("expected maxScore 100, got %.2f", summary.MaxScore)
	}
}

func TestMistypedFieldSkipsFactor(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		linearFactor("income", "annualIncome", 100, 1.0, 0.001, 0),
	})

	summary := engine.Calculate(domain.ApplicantRecord{
		"annualIncome": domain.Text("eighty thousand"),
	})

	if summary.TotalScore != 0 {
		t.Errorf("expected 0 with mistyped field, got %.2f", summary.TotalScore)
	}
	if !summary.Results[0].Skipped {
		t.Error("mistyped field should skip the factor")
	}
}

func TestCalculateIsPure(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors(DefaultFactors())

	record := domain.ApplicantRecord{
		"creditScore":      domain.Number(720),
		"annualIncome":     domain.Number(85000),
		"debtToIncome":     domain.Number(0.3),
		"employmentYears":  domain.Number(4),
		"employmentStatus": domain.Text("employed"),
		"loanAmount":       domain.Number(15000),
		"loanPurpose":      domain.Text("auto"),
		"delinquencies":    domain.Number(0),
	}

	first := engine.Calculate(record)
	second := engine.Calculate(record)

	if first.TotalScore != second.TotalScore {
		t.Errorf("totalScore changed between identical calls: %.2f vs %.2f", first.TotalScore, second.TotalScore)
	}
	if first.MaxScore != second.MaxScore {
		t.Errorf("maxScore changed between identical calls: %.2f vs %.2f", first.MaxScore, second.MaxScore)
	}
	for category, points := range first.Breakdown {
		if second.Breakdown[category] != points {
			t.Errorf("breakdown[%s] changed: %.2f vs %.2f", category, points, second.Breakdown[category])
		}
	}
}

func TestWeightMultipliesRawPoints(t *testing.T) {
	engine := NewEngine()
	engine.LoadFactors([]*domain.ScoringFactorConfig{
		linearFactor("income", "annualIncome", 100, 2.5, 0.001, 0),
	})

	summary := engine.Calculate(domain.ApplicantRecord{"annualIncome": domain.Number(50000)})

	if summary.Results[0].RawPoints != 50 {
		t.Errorf("expected raw 50, got %.2f", summary.Results[0].RawPoints)
	}
	if summary.TotalScore != 125 {
		t.Errorf("expected weighted 125, got %.2f", summary.TotalScore)
	}
	if summary.MaxScore != 250 {
		t.Errorf("expected maxScore 250, got %.2f", summary.MaxScore)
	}
}
