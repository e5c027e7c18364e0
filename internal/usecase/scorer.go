package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// Parameter score names.
const (
	ParamTechnicalKnowledge   = "Technical Knowledge"
	ParamProblemSolving       = "Problem Solving"
	ParamCommunicationSkills  = "Communication Skills"
	ParamPracticalApplication = "Practical Application"
	ParamCompanyFit           = "Company Fit"
)

// ParameterNames lists the parameter scores in display order.
var ParameterNames = []string{ParamTechnicalKnowledge, ParamProblemSolving, ParamCommunicationSkills, ParamPracticalApplication, ParamCompanyFit}

// CategoryWeights weight category means in the overall score. Weights are
// renormalized over the categories present in the question set.
var CategoryWeights = map[domain.Category]float64{
	domain.CategoryTechnical:  0.35,
	domain.CategoryDSA:        0.25,
	domain.CategoryBehavioral: 0.20,
	domain.CategoryAptitude:   0.20,
}

// PassingScore is the per-question score counted as a correct answer.
const PassingScore = 60

const (
	fullLengthChars = 200
	fullWordCount   = 40
	shortAnswerLen  = 10
	shortScore      = 5
)

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "and": {}, "answer": {}, "candidate": {}, "clear": {},
	"does": {}, "each": {}, "explain": {}, "from": {}, "have": {}, "into": {}, "mentions": {},
	"should": {}, "that": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "what": {}, "when": {}, "which": {}, "while": {}, "with": {}, "would": {},
	"your": {},
}

// HeuristicScorer scores answers lexically. Identical input gives identical
// output apart from TimeSpent, which depends on Now.
type HeuristicScorer struct {
	Now func() time.Time
}

// ScoreAnswer scores one answer against its question in [0,100].
func ScoreAnswer(q domain.Question, text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	if n <= shortAnswerLen {
		return shortScore
	}
	length := math.Min(float64(n)/fullLengthChars, 1) * 40
	words := math.Min(float64(len(strings.Fields(text)))/fullWordCount, 1) * 30
	coverage := keywordCoverage(q, text) * 30
	return round1(clamp(length + words + coverage))
}

// keywordCoverage is the share of expected terms found in text, or 0.5 when
// the question carries no expected terms.
func keywordCoverage(q domain.Question, text string) float64 {
	terms := keywords(q.ExpectedAnswer + " " + strings.Join(q.EvaluationCriteria, " "))
	if len(terms) == 0 {
		return 0.5
	}
	have := make(map[string]struct{})
	for _, t := range tokenize(text) {
		have[t] = struct{}{}
	}
	hit := 0
	for _, t := range terms {
		if _, ok := have[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}

func keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tokenize(s) {
		if len(t) < 4 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type scoredItem struct {
	category domain.Category
	score    float64
	answered bool
	lengthR  float64
}

// Score implements domain.Scorer.
func (h HeuristicScorer) Score(_ domain.Context, iv domain.Interview, qs domain.QuestionSet, answers []domain.CanonicalAnswer) (domain.PerformanceRecord, error) {
	byIndex := make(map[int]string, len(answers))
	for _, a := range answers {
		byIndex[a.Index] = a.Text
	}

	items := make([]scoredItem, 0, len(qs.Questions))
	scores := make([]domain.QuestionScore, 0, len(qs.Questions))
	add := func(idx int, q domain.Question, text string, ok bool) {
		cat := q.Category
		if cat == "" {
			cat = domain.CategoryTechnical
		}
		it := scoredItem{category: cat, answered: ok && strings.TrimSpace(text) != ""}
		if it.answered {
			it.score = ScoreAnswer(q, text)
			it.lengthR = math.Min(float64(utf8.RuneCountInString(strings.TrimSpace(text)))/fullLengthChars, 1)
		}
		items = append(items, it)
		scores = append(scores, domain.QuestionScore{Index: idx, Category: cat, Score: it.score, Answered: it.answered})
	}
	for i, q := range qs.Questions {
		text, ok := byIndex[i]
		add(i, q, text, ok)
	}
	// Answers past the end of a stored set are ignored. Without a stored set
	// each answer is scored against a generic question.
	if len(qs.Questions) == 0 {
		for _, a := range answers {
			add(a.Index, domain.Question{Index: a.Index}, a.Text, true)
		}
	}
	if len(items) == 0 {
		return domain.PerformanceRecord{}, fmt.Errorf("%w: no answers submitted", domain.ErrNoAnswers)
	}

	means, counts := categoryMeans(items)
	overall := weightedOverall(means)
	answered, correct := 0, 0
	lengthSum := 0.0
	for _, it := range items {
		if it.answered {
			answered++
			lengthSum += it.lengthR
		}
		if it.score >= PassingScore {
			correct++
		}
	}
	completion := float64(answered) / float64(len(items))
	lengthSignal := 0.0
	if answered > 0 {
		lengthSignal = lengthSum / float64(answered)
	}

	params := parameterScores(means, overall, completion, lengthSignal)
	var rounds []domain.RoundResult
	for _, c := range domain.Categories {
		if n, ok := counts[c]; ok {
			rounds = append(rounds, domain.RoundResult{RoundType: string(c), Score: round1(means[c]), Questions: n})
		}
	}

	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now().UTC()
	}
	spent := int(now.Sub(iv.CreatedAt).Minutes())
	if spent < 0 {
		spent = 0
	}
	if iv.EstimatedDuration > 0 && spent > iv.EstimatedDuration {
		spent = iv.EstimatedDuration
	}
	completedAt := now
	if iv.CompletedAt != nil {
		completedAt = iv.CompletedAt.UTC()
	}

	return domain.PerformanceRecord{
		InterviewID:     iv.ID,
		Owner:           iv.Owner.Canonical(),
		JobTitle:        iv.JobTitle,
		CompanyName:     iv.CompanyName,
		InterviewType:   iv.InterviewType,
		ExperienceLevel: iv.ExperienceLevel,
		QuestionScores:  scores,
		OverallScore:    overall,
		ParameterScores: params,
		Feedback:        buildFeedback(means, overall, len(items), answered),
		RoundResults:    rounds,
		TimeSpent:       spent,
		TotalQuestions:  len(items),
		CorrectAnswers:  correct,
		Source:          domain.SourceScoring,
		CompletedAt:     completedAt,
	}, nil
}

func categoryMeans(items []scoredItem) (map[domain.Category]float64, map[domain.Category]int) {
	sums := make(map[domain.Category]float64)
	counts := make(map[domain.Category]int)
	for _, it := range items {
		sums[it.category] += it.score
		counts[it.category]++
	}
	means := make(map[domain.Category]float64, len(sums))
	for c, s := range sums {
		means[c] = s / float64(counts[c])
	}
	return means, counts
}

func weightedOverall(means map[domain.Category]float64) float64 {
	var num, den float64
	for _, c := range domain.Categories {
		m, ok := means[c]
		if !ok {
			continue
		}
		num += CategoryWeights[c] * m
		den += CategoryWeights[c]
	}
	if den == 0 {
		return 0
	}
	return round1(clamp(num / den))
}

// meanOf averages the present categories, falling back to def.
func meanOf(means map[domain.Category]float64, def float64, cats ...domain.Category) float64 {
	sum, n := 0.0, 0
	for _, c := range cats {
		if m, ok := means[c]; ok {
			sum += m
			n++
		}
	}
	if n == 0 {
		return def
	}
	return sum / float64(n)
}

func parameterScores(means map[domain.Category]float64, overall, completion, lengthSignal float64) map[string]float64 {
	technical := meanOf(means, overall, domain.CategoryTechnical, domain.CategoryDSA)
	solving := meanOf(means, overall, domain.CategoryDSA, domain.CategoryAptitude)
	behavioral := meanOf(means, overall, domain.CategoryBehavioral)
	practical := meanOf(means, overall, domain.CategoryTechnical)
	return map[string]float64{
		ParamTechnicalKnowledge:   round1(clamp(technical)),
		ParamProblemSolving:       round1(clamp(solving)),
		ParamCommunicationSkills:  round1(clamp(0.6*behavioral + 0.4*lengthSignal*100)),
		ParamPracticalApplication: round1(clamp(0.5*practical + 0.5*completion*100)),
		ParamCompanyFit:           round1(clamp(0.7*behavioral + 0.3*completion*100)),
	}
}

// Band names the score range of overall.
func Band(overall float64) string {
	switch {
	case overall >= 80:
		return "excellent"
	case overall >= 60:
		return "good"
	case overall >= 40:
		return "fair"
	default:
		return "needs improvement"
	}
}

var categoryAdvice = map[domain.Category]string{
	domain.CategoryTechnical:  "Review core concepts of the listed skills and practise explaining trade-offs out loud.",
	domain.CategoryDSA:        "Solve two or three timed coding problems a week and state complexity before coding.",
	domain.CategoryBehavioral: "Prepare STAR stories with concrete outcomes for conflict, failure and leadership.",
	domain.CategoryAptitude:   "Practise estimation and logic puzzles, showing each step of the reasoning.",
}

func buildFeedback(means map[domain.Category]float64, overall float64, total, answered int) domain.Feedback {
	var fb domain.Feedback
	for _, c := range domain.Categories {
		m, ok := means[c]
		if !ok {
			continue
		}
		switch {
		case m >= 70:
			fb.Strengths = append(fb.Strengths, fmt.Sprintf("Strong performance in %s questions", c))
		case m < 50:
			fb.Improvements = append(fb.Improvements, fmt.Sprintf("Work on %s questions (%.0f/100)", c, m))
			fb.Recommendations = append(fb.Recommendations, categoryAdvice[c])
		}
	}
	if answered == total {
		fb.Strengths = append(fb.Strengths, "Answered every question")
	} else {
		fb.Improvements = append(fb.Improvements, fmt.Sprintf("Answer all questions; %d left unanswered", total-answered))
	}
	if len(fb.Strengths) == 0 {
		fb.Strengths = []string{"Completed the interview and submitted answers"}
	}
	if len(fb.Improvements) == 0 {
		fb.Improvements = []string{"Add concrete examples and measurable outcomes to stand out further"}
	}
	if overall >= 80 {
		fb.Recommendations = append(fb.Recommendations, "Move on to harder interview levels or mock panels.")
	} else {
		fb.Recommendations = append(fb.Recommendations, "Expand answers with specific examples from your own projects.")
	}
	fb.Overall = fmt.Sprintf("Overall score %.1f/100 (%s): %d of %d questions answered.", overall, Band(overall), answered, total)
	return fb
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
