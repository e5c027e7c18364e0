package usecase_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

func TestPlanDistribution_DSA(t *testing.T) {
	for _, level := range []string{"entry", "mid", "senior", "", "principal"} {
		p, err := usecase.PlanDistribution(domain.InterviewDSA, level)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Total, level)
		require.Len(t, p.Quotas, 1)
		assert.Equal(t, domain.CategoryDSA, p.Quotas[0].Category)
		assert.Equal(t, 45, p.Quotas[0].TimeLimitMinutes)
	}
}

func TestPlanDistribution_Mixed(t *testing.T) {
	p, err := usecase.PlanDistribution(domain.InterviewMixed, "mid")
	require.NoError(t, err)
	assert.Equal(t, 16, p.Total)
	want := map[domain.Category]int{
		domain.CategoryTechnical: 6, domain.CategoryBehavioral: 4,
		domain.CategoryAptitude: 4, domain.CategoryDSA: 2,
	}
	for _, q := range p.Quotas {
		assert.Equal(t, want[q.Category], q.Count, q.Category)
		if q.Category == domain.CategoryDSA {
			assert.Equal(t, 45, q.TimeLimitMinutes)
		} else {
			assert.Equal(t, 5, q.TimeLimitMinutes)
		}
	}
	assert.Equal(t, []domain.Category{domain.CategoryTechnical, domain.CategoryBehavioral, domain.CategoryAptitude, domain.CategoryDSA},
		[]domain.Category{p.Quotas[0].Category, p.Quotas[1].Category, p.Quotas[2].Category, p.Quotas[3].Category})
}

func TestPlanDistribution_SingleCategoryBaselines(t *testing.T) {
	cases := map[domain.InterviewType]int{
		domain.InterviewTechnical:  12,
		domain.InterviewBehavioral: 10,
		domain.InterviewAptitude:   15,
	}
	for typ, n := range cases {
		p, err := usecase.PlanDistribution(typ, "senior")
		require.NoError(t, err)
		assert.Equal(t, n, p.Total, typ)
		require.Len(t, p.Quotas, 1)
		assert.Equal(t, 5, p.Quotas[0].TimeLimitMinutes)
		assert.Equal(t, 10, p.Quotas[0].Points)
		assert.Equal(t, domain.DifficultyHard, p.Quotas[0].Difficulty)

		again, _ := usecase.PlanDistribution(typ, "senior")
		assert.Equal(t, p, again, "deterministic for identical input")
	}
}

func TestPlanDistribution_DSAPointsByLevel(t *testing.T) {
	cases := []struct {
		level  string
		diff   domain.Difficulty
		points int
	}{
		{"entry", domain.DifficultyEasy, 20},
		{"mid", domain.DifficultyMedium, 30},
		{"Senior", domain.DifficultyHard, 45},
		{"", domain.DifficultyMedium, 30},
	}
	for _, tc := range cases {
		p, err := usecase.PlanDistribution(domain.InterviewDSA, tc.level)
		require.NoError(t, err)
		assert.Equal(t, tc.diff, p.Quotas[0].Difficulty, tc.level)
		assert.Equal(t, tc.points, p.Quotas[0].Points, tc.level)
	}
}

func TestPlanDistribution_UnknownType(t *testing.T) {
	_, err := usecase.PlanDistribution("puzzle", "mid")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestPlan_EstimatedDuration(t *testing.T) {
	p, _ := usecase.PlanDistribution(domain.InterviewMixed, "mid")
	// (14*5 + 2*45) * 1.2 = 192
	assert.Equal(t, 192, p.EstimatedDuration())
	d, _ := usecase.PlanDistribution(domain.InterviewDSA, "mid")
	assert.Equal(t, 108, d.EstimatedDuration())
}

func rawQuestions(cat domain.Category, n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{Category: cat, Prompt: fmt.Sprintf("%s question %d", cat, i), TimeLimitMinutes: 99}
	}
	return out
}

func TestPlan_FitAndValidate(t *testing.T) {
	p, _ := usecase.PlanDistribution(domain.InterviewMixed, "mid")

	var raw []domain.Question
	raw = append(raw, rawQuestions("Technical", 8)...) // surplus dropped
	raw = append(raw, rawQuestions("behavioural", 4)...)
	raw = append(raw, rawQuestions("aptitude", 4)...)
	raw = append(raw, rawQuestions("DSA", 2)...)
	raw = append(raw, domain.Question{Category: "trivia", Prompt: "dropped"})
	raw = append(raw, domain.Question{Category: "technical", Prompt: "   "})

	fitted := p.Fit(raw)
	require.NoError(t, p.Validate(fitted))
	for i, q := range fitted {
		assert.Equal(t, i, q.Index)
	}
	assert.Equal(t, domain.CategoryTechnical, fitted[0].Category)
	assert.Equal(t, domain.CategoryDSA, fitted[15].Category)
	assert.Equal(t, 45, fitted[15].TimeLimitMinutes)
	assert.Equal(t, 5, fitted[0].TimeLimitMinutes)
	assert.Equal(t, usecase.GeneratedTestCaseRef(fitted[15].Prompt), fitted[15].TestCaseRef)
	assert.Empty(t, fitted[0].TestCaseRef)

	kept := p.Fit([]domain.Question{{Category: domain.CategoryDSA, Prompt: "two sum", TestCaseRef: "two-sum"}})
	assert.Equal(t, "two-sum", kept[0].TestCaseRef)
}

func TestPlan_ShortfallAndMerge(t *testing.T) {
	p, _ := usecase.PlanDistribution(domain.InterviewMixed, "entry")
	partial := p.Fit(append(rawQuestions(domain.CategoryTechnical, 6), rawQuestions(domain.CategoryDSA, 1)...))
	err := p.Validate(partial)
	require.Error(t, err)
	assert.True(t, usecase.IsQuotaViolation(err))
	assert.True(t, errors.Is(err, domain.ErrSchemaInvalid))

	short := p.Shortfall(partial)
	require.Len(t, short, 3)
	assert.Equal(t, domain.Quota{Category: domain.CategoryBehavioral, Count: 4, TimeLimitMinutes: 5, Difficulty: domain.DifficultyEasy, Points: 10}, short[0])
	assert.Equal(t, 1, short[2].Count)
	assert.Equal(t, domain.CategoryDSA, short[2].Category)

	var topUp []domain.Question
	for _, q := range short {
		topUp = append(topUp, rawQuestions(q.Category, q.Count)...)
	}
	merged := p.Merge(partial, topUp)
	require.NoError(t, p.Validate(merged))
}

func TestPlan_FitAssignsSingleCategory(t *testing.T) {
	p, _ := usecase.PlanDistribution(domain.InterviewBehavioral, "mid")
	fitted := p.Fit(rawQuestions("", 10))
	require.NoError(t, p.Validate(fitted))
}

func TestPlan_ValidateRejectsBadIndicesAndLimits(t *testing.T) {
	p, _ := usecase.PlanDistribution(domain.InterviewDSA, "mid")
	qs := []domain.Question{
		{Index: 0, Category: domain.CategoryDSA, Prompt: "a", TimeLimitMinutes: 45},
		{Index: 5, Category: domain.CategoryDSA, Prompt: "b", TimeLimitMinutes: 30},
	}
	err := p.Validate(qs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 5")
	assert.Contains(t, err.Error(), "time limit 30")
}
