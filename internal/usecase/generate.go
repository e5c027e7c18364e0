package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
)

// CachedProvider is reported for reads served from the stored set.
const CachedProvider = "cached"

// Breakdown counts a question set by category, difficulty and provider.
type Breakdown struct {
	Categories   map[string]int `json:"categories"`
	Difficulties map[string]int `json:"difficulties"`
	Providers    map[string]int `json:"providers"`
}

// BreakdownOf summarizes qs.
func BreakdownOf(qs []domain.Question) Breakdown {
	b := Breakdown{Categories: map[string]int{}, Difficulties: map[string]int{}, Providers: map[string]int{}}
	for _, q := range qs {
		b.Categories[string(q.Category)]++
		b.Difficulties[string(q.Difficulty)]++
		b.Providers[q.Provider]++
	}
	return b
}

// GenerationResult is the outcome of Generate.
type GenerationResult struct {
	QuestionSet domain.QuestionSet
	Cached      bool
	Degraded    bool
	Provider    string
	Breakdown   Breakdown
	Attempts    []Attempt
}

// GenerationService produces and stores the question set of an interview.
type GenerationService struct {
	Interviews   domain.InterviewRepository
	QuestionSets domain.QuestionSetRepository
	Answers      domain.AnswerRepository
	Performances domain.PerformanceRepository
	Locker       domain.Locker
	Fallback     FallbackController
	Events       domain.EventPublisher
	Recorder     Recorder
	Now          func() time.Time
}

// NewGenerationService constructs a GenerationService over st.
func NewGenerationService(st domain.Store, locker domain.Locker, fb FallbackController, events domain.EventPublisher, rec Recorder) GenerationService {
	return GenerationService{
		Interviews:   st.Interviews,
		QuestionSets: st.QuestionSets,
		Answers:      st.Answers,
		Performances: st.Performances,
		Locker:       locker,
		Fallback:     fb,
		Events:       events,
		Recorder:     rec,
		Now:          time.Now,
	}
}

// Generate returns the interview's question set, generating it when absent
// or when regenerate is set. At most one generation per interview runs at a
// time; a concurrent caller gets domain.ErrConflict.
func (s GenerationService) Generate(ctx domain.Context, interviewID string, regenerate bool) (GenerationResult, error) {
	return s.GenerateWith(ctx, interviewID, regenerate, "")
}

// GenerateWith is Generate with the named provider tried first.
func (s GenerationService) GenerateWith(ctx domain.Context, interviewID string, regenerate bool, preferred string) (GenerationResult, error) {
	if !domain.IsObjectID(interviewID) {
		return GenerationResult{}, fmt.Errorf("%w: interviewId must be a 24-character hex id", domain.ErrInvalidArgument)
	}
	ctx = obsctx.ContextWithInterview(ctx, interviewID)
	lg := obsctx.LoggerFromContext(ctx)
	rec := recorderOrNop(s.Recorder)

	release, err := lockInterview(ctx, s.Locker, rec, interviewID, "generate")
	if err != nil {
		return GenerationResult{}, err
	}
	defer release()

	iv, err := s.Interviews.Get(ctx, interviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GenerationResult{}, fmt.Errorf("%w: interview not found", domain.ErrNotFound)
		}
		return GenerationResult{}, fmt.Errorf("op=generate.get_interview: %w", err)
	}

	existing, err := s.QuestionSets.Get(ctx, interviewID)
	hasExisting := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return GenerationResult{}, fmt.Errorf("op=generate.get_questions: %w", err)
	}
	if hasExisting && !regenerate {
		lg.Debug("serving stored question set")
		return GenerationResult{
			QuestionSet: existing,
			Cached:      true,
			Degraded:    existing.Degraded,
			Provider:    CachedProvider,
			Breakdown:   BreakdownOf(existing.Questions),
		}, nil
	}

	plan, err := PlanDistribution(iv.InterviewType, iv.ExperienceLevel)
	if err != nil {
		return GenerationResult{}, err
	}
	fb := s.Fallback
	if preferred != "" {
		fb = fb.Preferring(preferred)
	}
	out, err := fb.Generate(ctx, plan, plan.Request(iv))
	if err != nil {
		return GenerationResult{}, err
	}

	now := s.now()
	qs := domain.QuestionSet{
		ID:          uuid.NewString(),
		InterviewID: interviewID,
		Questions:   out.Questions,
		GeneratedAt: now,
		Provenance:  out.Provenance,
		Providers:   out.Providers,
		Regenerated: hasExisting,
		Degraded:    out.Degraded,
	}
	if err := s.QuestionSets.Replace(ctx, qs); err != nil {
		return GenerationResult{}, fmt.Errorf("op=generate.replace: %w", err)
	}

	// answers and the score refer to the superseded questions
	if hasExisting {
		if err := s.Answers.DeleteAll(ctx, interviewID); err != nil {
			return GenerationResult{}, fmt.Errorf("op=generate.clear_answers: %w", err)
		}
		if s.Performances != nil {
			if err := s.Performances.Delete(ctx, interviewID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return GenerationResult{}, fmt.Errorf("op=generate.clear_performance: %w", err)
			}
		}
		iv.PerformanceID = ""
	}

	iv.Reopen(domain.StatusReady, now)
	iv.QuestionsCount = len(qs.Questions)
	iv.EstimatedDuration = plan.EstimatedDuration()
	if err := s.Interviews.Update(ctx, iv); err != nil {
		return GenerationResult{}, fmt.Errorf("op=generate.update_interview: %w", err)
	}

	rec.QuestionSet(string(qs.Provenance))
	publish(ctx, s.Events, domain.Event{
		Type:        domain.EventQuestionsGenerated,
		InterviewID: interviewID,
		OccurredAt:  now,
		Attributes: map[string]any{
			"provider":    out.Provider,
			"provenance":  string(qs.Provenance),
			"degraded":    qs.Degraded,
			"regenerated": qs.Regenerated,
			"count":       len(qs.Questions),
		},
	})
	lg.Info("question set stored",
		slog.String("provider", out.Provider),
		slog.Bool("degraded", qs.Degraded),
		slog.Bool("regenerated", qs.Regenerated),
		slog.Int("count", len(qs.Questions)))

	return GenerationResult{
		QuestionSet: qs,
		Degraded:    qs.Degraded,
		Provider:    out.Provider,
		Breakdown:   BreakdownOf(qs.Questions),
		Attempts:    out.Attempts,
	}, nil
}

func (s GenerationService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// publish sends ev best-effort; failures are logged only.
func publish(ctx domain.Context, p domain.EventPublisher, ev domain.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("event publish failed",
			slog.String("type", ev.Type),
			slog.String("interview_id", ev.InterviewID),
			slog.Any("error", err))
	}
}
