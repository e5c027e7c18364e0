package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
)

// ScoringService computes and stores the PerformanceRecord of an interview.
// Re-scoring overwrites the existing record and keeps its id.
type ScoringService struct {
	Interviews   domain.InterviewRepository
	QuestionSets domain.QuestionSetRepository
	Answers      domain.AnswerRepository
	Performances domain.PerformanceRepository
	Locker       domain.Locker
	Scorer       domain.Scorer
	Events       domain.EventPublisher
	Recorder     Recorder
	Now          func() time.Time
}

// NewScoringService constructs a ScoringService. A nil scorer uses HeuristicScorer.
func NewScoringService(st domain.Store, locker domain.Locker, scorer domain.Scorer, events domain.EventPublisher, rec Recorder) ScoringService {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return ScoringService{
		Interviews:   st.Interviews,
		QuestionSets: st.QuestionSets,
		Answers:      st.Answers,
		Performances: st.Performances,
		Locker:       locker,
		Scorer:       scorer,
		Events:       events,
		Recorder:     rec,
		Now:          time.Now,
	}
}

// Score checks, in order: a well-formed id, the interview lock,
// existence, completed status and at least one answer.
func (s ScoringService) Score(ctx domain.Context, interviewID string) (domain.PerformanceRecord, error) {
	if !domain.IsObjectID(interviewID) {
		return domain.PerformanceRecord{}, fmt.Errorf("%w: interviewId must be a 24-character hex id", domain.ErrInvalidArgument)
	}
	ctx = obsctx.ContextWithInterview(ctx, interviewID)
	rec := recorderOrNop(s.Recorder)
	release, err := lockInterview(ctx, s.Locker, rec, interviewID, "score")
	if err != nil {
		return domain.PerformanceRecord{}, err
	}
	defer release()

	iv, err := s.Interviews.Get(ctx, interviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PerformanceRecord{}, fmt.Errorf("%w: interview not found", domain.ErrNotFound)
		}
		return domain.PerformanceRecord{}, fmt.Errorf("op=score.get_interview: %w", err)
	}
	if iv.Status != domain.StatusCompleted {
		return domain.PerformanceRecord{}, domain.ErrNotReady
	}
	var (
		stored []domain.Answer
		qs     domain.QuestionSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if stored, err = s.Answers.List(gctx, interviewID); err != nil {
			return fmt.Errorf("op=score.list_answers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if qs, err = s.QuestionSets.Get(gctx, interviewID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("op=score.get_questions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.PerformanceRecord{}, err
	}
	answers := NormalizeStored(stored)
	if len(answers) == 0 {
		return domain.PerformanceRecord{}, domain.ErrNoAnswers
	}

	lg := obsctx.LoggerFromContext(ctx)
	perf, err := s.Scorer.Score(ctx, iv, qs, answers)
	if err != nil {
		return domain.PerformanceRecord{}, fmt.Errorf("op=score.compute: %w", err)
	}
	now := s.now()
	perf.InterviewID = interviewID
	perf.CreatedAt = now
	if perf.Source == "" {
		perf.Source = domain.SourceScoring
	}
	id, err := s.Performances.Upsert(ctx, perf)
	if err != nil {
		return domain.PerformanceRecord{}, fmt.Errorf("op=score.upsert: %w", err)
	}
	perf.ID = id

	if iv.PerformanceID != id {
		iv.PerformanceID = id
		iv.UpdatedAt = now
		if err := s.Interviews.Update(ctx, iv); err != nil {
			return domain.PerformanceRecord{}, fmt.Errorf("op=score.update_interview: %w", err)
		}
	}

	rec.Scored(string(perf.Source), perf.OverallScore)
	publish(ctx, s.Events, domain.Event{
		Type:        domain.EventInterviewScored,
		InterviewID: interviewID,
		OccurredAt:  now,
		Attributes: map[string]any{
			"performanceId":  id,
			"overallScore":   perf.OverallScore,
			"correctAnswers": perf.CorrectAnswers,
			"totalQuestions": perf.TotalQuestions,
		},
	})
	lg.Info("interview scored",
		slog.String("performance_id", id),
		slog.Float64("overall_score", perf.OverallScore),
		slog.Int("answers", len(answers)))
	return perf, nil
}

// FeedbackStatus reports whether a PerformanceRecord exists. It never scores.
func (s ScoringService) FeedbackStatus(ctx domain.Context, interviewID string) (bool, *domain.PerformanceRecord, error) {
	if !domain.IsObjectID(interviewID) {
		return false, nil, fmt.Errorf("%w: interviewId must be a 24-character hex id", domain.ErrInvalidArgument)
	}
	perf, err := s.Performances.GetByInterview(ctx, interviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("op=score.feedback_status: %w", err)
	}
	return true, &perf, nil
}

func (s ScoringService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
