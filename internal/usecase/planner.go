package usecase

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

const (
	dsaTimeLimitMinutes   = 45
	plainTimeLimitMinutes = 5
	plainQuestionPoints   = 10
)

// singleCategoryCounts is the baseline count for interviews of one category.
var singleCategoryCounts = map[domain.InterviewType]int{
	domain.InterviewTechnical:  12,
	domain.InterviewBehavioral: 10,
	domain.InterviewAptitude:   15,
	domain.InterviewDSA:        2,
}

// mixedCounts is the fixed distribution of a mixed interview (16 questions).
var mixedCounts = map[domain.Category]int{
	domain.CategoryTechnical:  6,
	domain.CategoryBehavioral: 4,
	domain.CategoryAptitude:   4,
	domain.CategoryDSA:        2,
}

// Plan is the quota for one interview configuration.
type Plan struct {
	InterviewType   domain.InterviewType `json:"interviewType"`
	ExperienceLevel string               `json:"experienceLevel"`
	Total           int                  `json:"total"`
	Quotas          []domain.Quota       `json:"quotas"`
}

// PlanDistribution computes the exact quota for an interview type and
// experience level. It performs no I/O and is deterministic.
func PlanDistribution(interviewType domain.InterviewType, experienceLevel string) (Plan, error) {
	level := normalizeLevel(experienceLevel)
	p := Plan{InterviewType: interviewType, ExperienceLevel: level}
	switch interviewType {
	case domain.InterviewMixed:
		for _, c := range domain.Categories {
			p.Quotas = append(p.Quotas, quotaFor(c, mixedCounts[c], level))
		}
	case domain.InterviewTechnical, domain.InterviewBehavioral, domain.InterviewAptitude, domain.InterviewDSA:
		c := domain.Category(interviewType)
		p.Quotas = []domain.Quota{quotaFor(c, singleCategoryCounts[interviewType], level)}
	default:
		return Plan{}, fmt.Errorf("%w: unknown interview type %q", domain.ErrInvalidArgument, interviewType)
	}
	for _, q := range p.Quotas {
		p.Total += q.Count
	}
	return p, nil
}

func normalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case domain.LevelEntry, domain.LevelSenior:
		return l
	default:
		return domain.LevelMid
	}
}

func quotaFor(c domain.Category, count int, level string) domain.Quota {
	q := domain.Quota{Category: c, Count: count, TimeLimitMinutes: plainTimeLimitMinutes, Points: plainQuestionPoints}
	switch level {
	case domain.LevelEntry:
		q.Difficulty = domain.DifficultyEasy
	case domain.LevelSenior:
		q.Difficulty = domain.DifficultyHard
	default:
		q.Difficulty = domain.DifficultyMedium
	}
	if c == domain.CategoryDSA {
		q.TimeLimitMinutes = dsaTimeLimitMinutes
		q.Points = dsaPoints(q.Difficulty)
	}
	return q
}

func dsaPoints(d domain.Difficulty) int {
	switch d {
	case domain.DifficultyEasy:
		return 20
	case domain.DifficultyHard:
		return 45
	default:
		return 30
	}
}

// Quota returns the quota of category c, or a zero quota.
func (p Plan) Quota(c domain.Category) domain.Quota {
	for _, q := range p.Quotas {
		if q.Category == c {
			return q
		}
	}
	return domain.Quota{Category: c}
}

// Request builds the provider request for iv under this plan.
func (p Plan) Request(iv domain.Interview) domain.GenerationRequest {
	return domain.GenerationRequest{
		InterviewID:     iv.ID,
		JobTitle:        iv.JobTitle,
		JobDesc:         iv.JobDesc,
		CompanyName:     iv.CompanyName,
		Skills:          iv.Skills,
		ProjectContext:  iv.ProjectContext,
		WorkExDetails:   iv.WorkExDetails,
		InterviewType:   iv.InterviewType,
		ExperienceLevel: p.ExperienceLevel,
		Quotas:          append([]domain.Quota(nil), p.Quotas...),
	}
}

// EstimatedDuration is the sum of time limits with a 20% buffer, in minutes.
func (p Plan) EstimatedDuration() int {
	total := 0
	for _, q := range p.Quotas {
		total += q.Count * q.TimeLimitMinutes
	}
	return int(math.Ceil(float64(total) * 1.2))
}

// QuotaViolation describes why a question set does not satisfy a plan.
type QuotaViolation struct {
	Reasons []string
}

func (e *QuotaViolation) Error() string {
	return "quota violation: " + strings.Join(e.Reasons, "; ")
}

// Unwrap lets callers match the violation as a schema error.
func (e *QuotaViolation) Unwrap() error { return domain.ErrSchemaInvalid }

// Validate checks questions against the plan: total, per-category counts and
// time limits, contiguous indices, and non-empty prompts.
func (p Plan) Validate(questions []domain.Question) error {
	var reasons []string
	if len(questions) != p.Total {
		reasons = append(reasons, fmt.Sprintf("total %d, want %d", len(questions), p.Total))
	}
	counts := make(map[domain.Category]int, len(p.Quotas))
	for i, q := range questions {
		if q.Index != i {
			reasons = append(reasons, fmt.Sprintf("question %d has index %d", i, q.Index))
		}
		if strings.TrimSpace(q.Prompt) == "" {
			reasons = append(reasons, fmt.Sprintf("question %d has empty prompt", i))
		}
		want := p.Quota(q.Category)
		if want.Count == 0 {
			reasons = append(reasons, fmt.Sprintf("question %d has unexpected category %q", i, q.Category))
			continue
		}
		if q.TimeLimitMinutes != want.TimeLimitMinutes {
			reasons = append(reasons, fmt.Sprintf("question %d time limit %d, want %d", i, q.TimeLimitMinutes, want.TimeLimitMinutes))
		}
		counts[q.Category]++
	}
	for _, want := range p.Quotas {
		if got := counts[want.Category]; got != want.Count {
			reasons = append(reasons, fmt.Sprintf("category %s has %d, want %d", want.Category, got, want.Count))
		}
	}
	if len(reasons) > 0 {
		return &QuotaViolation{Reasons: reasons}
	}
	return nil
}

// Shortfall returns the quotas still missing from questions, keeping plan order.
func (p Plan) Shortfall(questions []domain.Question) []domain.Quota {
	have := make(map[domain.Category]int)
	for _, q := range questions {
		have[q.Category]++
	}
	var out []domain.Quota
	for _, q := range p.Quotas {
		if missing := q.Count - have[q.Category]; missing > 0 {
			q.Count = missing
			out = append(out, q)
		}
	}
	return out
}

// Fit conforms raw provider questions to the plan: unknown categories and
// surplus entries are dropped, time limit, points and difficulty come from the
// quota, and the result is ordered by plan category then original order. DSA
// questions without a test case reference get one derived from the prompt.
func (p Plan) Fit(raw []domain.Question) []domain.Question {
	byCat := make(map[domain.Category][]domain.Question)
	for _, q := range raw {
		q.Category = normalizeCategory(string(q.Category))
		if q.Category == "" && len(p.Quotas) == 1 {
			q.Category = p.Quotas[0].Category
		}
		want := p.Quota(q.Category)
		if want.Count == 0 || strings.TrimSpace(q.Prompt) == "" {
			continue
		}
		if len(byCat[q.Category]) >= want.Count {
			continue
		}
		q.Prompt = strings.TrimSpace(q.Prompt)
		q.TimeLimitMinutes = want.TimeLimitMinutes
		q.Points = want.Points
		q.Difficulty = want.Difficulty
		if q.Category == domain.CategoryDSA && q.TestCaseRef == "" {
			q.TestCaseRef = GeneratedTestCaseRef(q.Prompt)
		}
		byCat[q.Category] = append(byCat[q.Category], q)
	}
	out := make([]domain.Question, 0, p.Total)
	for _, want := range p.Quotas {
		out = append(out, byCat[want.Category]...)
	}
	return reindex(out)
}

// Merge appends top-up questions to fitted ones and returns the set in plan order.
func (p Plan) Merge(fitted, topUp []domain.Question) []domain.Question {
	return p.Fit(append(append([]domain.Question(nil), fitted...), topUp...))
}

// GeneratedTestCaseRef names the test case of a provider-written DSA prompt.
// The code-execution service resolves it; identical prompts share a ref.
func GeneratedTestCaseRef(prompt string) string {
	return "generated:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(prompt)).String()
}

func reindex(qs []domain.Question) []domain.Question {
	for i := range qs {
		qs[i].Index = i
	}
	return qs
}

func normalizeCategory(s string) domain.Category {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "dsa" || strings.Contains(s, "algorithm") || strings.Contains(s, "coding") || strings.Contains(s, "data structure"):
		return domain.CategoryDSA
	case strings.HasPrefix(s, "behav") || s == "hr" || s == "situational":
		return domain.CategoryBehavioral
	case strings.HasPrefix(s, "apti") || s == "logical" || s == "quantitative" || s == "reasoning":
		return domain.CategoryAptitude
	case strings.HasPrefix(s, "tech") || s == "system_design" || s == "system design":
		return domain.CategoryTechnical
	}
	return domain.Category(s)
}

// IsQuotaViolation reports whether err is a plan validation failure.
func IsQuotaViolation(err error) bool {
	var qv *QuotaViolation
	return errors.As(err, &qv)
}
