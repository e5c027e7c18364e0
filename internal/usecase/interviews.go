package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
	"github.com/fairyhunter13/interview-prep/pkg/textx"
)

// List limits for ListForUser.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ValidationError lists invalid fields by name. It matches ErrInvalidArgument.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(names, ", "))
}

// Unwrap implements errors.Unwrap.
func (e *ValidationError) Unwrap() error { return domain.ErrInvalidArgument }

// CreateInput is the payload of a new interview.
type CreateInput struct {
	JobTitle        string
	JobDesc         string
	CompanyName     string
	Skills          []string
	ProjectContext  []string
	WorkExDetails   []string
	ExperienceLevel string
	InterviewType   domain.InterviewType
}

// SetAnswersResult is the outcome of SetAnswers.
type SetAnswersResult struct {
	AnswersCount int
	Status       domain.InterviewStatus
	Warnings     []NormalizeWarning
}

// UserStats summarizes a user's interviews by status.
type UserStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"inProgress"`
}

// UserInterviews is the result of ListForUser.
type UserInterviews struct {
	Interviews []domain.Interview
	Stats      UserStats
}

// SavePerformanceInput is a client-computed performance record.
type SavePerformanceInput struct {
	InterviewID     string
	JobTitle        string
	CompanyName     string
	Score           float64
	InterviewType   domain.InterviewType
	ExperienceLevel string
	ParameterScores map[string]float64
	Feedback        domain.Feedback
	RoundResults    []domain.RoundResult
	TimeSpent       int
	TotalQuestions  int
	CorrectAnswers  int
}

// RecentPerformance is one entry of PerformanceSummary.RecentPerformance.
type RecentPerformance struct {
	InterviewID string    `json:"interviewId"`
	JobTitle    string    `json:"jobTitle"`
	CompanyName string    `json:"companyName"`
	Score       float64   `json:"score"`
	CompletedAt time.Time `json:"completedAt"`
}

// PerformanceSummary aggregates a user's performance records.
type PerformanceSummary struct {
	TotalInterviews   int                 `json:"totalInterviews"`
	AverageScore      float64             `json:"averageScore"`
	TotalTimeSpent    int                 `json:"totalTimeSpent"`
	ImprovementTrend  float64             `json:"improvementTrend"`
	StrongestArea     string              `json:"strongestArea"`
	WeakestArea       string              `json:"weakestArea"`
	RecentPerformance []RecentPerformance `json:"recentPerformance"`
}

// PerformanceStats is the result of InterviewService.PerformanceStats.
type PerformanceStats struct {
	Performances []domain.PerformanceRecord
	Stats        PerformanceSummary
}

// InterviewService owns the interview lifecycle outside generation and scoring.
type InterviewService struct {
	Interviews   domain.InterviewRepository
	QuestionSets domain.QuestionSetRepository
	Answers      domain.AnswerRepository
	Performances domain.PerformanceRepository
	Locker       domain.Locker
	Events       domain.EventPublisher
	Now          func() time.Time
}

// NewInterviewService constructs an InterviewService over st.
func NewInterviewService(st domain.Store, locker domain.Locker, events domain.EventPublisher) InterviewService {
	return InterviewService{
		Interviews:   st.Interviews,
		QuestionSets: st.QuestionSets,
		Answers:      st.Answers,
		Performances: st.Performances,
		Locker:       locker,
		Events:       events,
		Now:          time.Now,
	}
}

// OwnerFor builds the owner reference of a session user.
func OwnerFor(userID string) domain.OwnerRef {
	if userID == "" {
		return domain.OwnerRef{}
	}
	if domain.IsObjectID(userID) {
		return domain.OwnerRef{ID: userID, Form: domain.OwnerFormObject}
	}
	return domain.OwnerRef{ID: userID, Form: domain.OwnerFormString}
}

// Create validates in and stores a new interview in status created.
func (s InterviewService) Create(ctx domain.Context, ownerID string, in CreateInput) (domain.Interview, error) {
	fields := map[string]string{}
	if textx.SanitizeText(in.JobDesc) == "" {
		fields["jobDesc"] = "required"
	}
	if textx.SanitizeText(in.CompanyName) == "" {
		fields["companyName"] = "required"
	}
	skills := textx.Compact(in.Skills)
	if len(skills) == 0 {
		fields["skills"] = "required"
	}
	if len(fields) > 0 {
		return domain.Interview{}, &ValidationError{Message: "Missing required fields", Fields: fields}
	}
	typ := in.InterviewType
	if typ == "" {
		typ = domain.InterviewMixed
	}
	if !typ.Valid() {
		return domain.Interview{}, &ValidationError{Message: "Invalid interview type", Fields: map[string]string{"interviewType": "oneof"}}
	}
	level := strings.ToLower(strings.TrimSpace(in.ExperienceLevel))
	if level == "" {
		level = domain.LevelMid
	}

	now := s.now()
	iv := domain.Interview{
		Owner:           OwnerFor(ownerID),
		JobTitle:        textx.SanitizeText(in.JobTitle),
		JobDesc:         textx.SanitizeText(in.JobDesc),
		CompanyName:     textx.SanitizeText(in.CompanyName),
		Skills:          skills,
		ProjectContext:  textx.Compact(in.ProjectContext),
		WorkExDetails:   textx.Compact(in.WorkExDetails),
		InterviewType:   typ,
		ExperienceLevel: level,
		Status:          domain.StatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if plan, err := PlanDistribution(typ, level); err == nil {
		iv.QuestionsCount = plan.Total
		iv.EstimatedDuration = plan.EstimatedDuration()
	}
	id, err := s.Interviews.Create(ctx, iv)
	if err != nil {
		return domain.Interview{}, fmt.Errorf("op=interviews.create: %w", err)
	}
	iv.ID = id
	obsctx.LoggerFromContext(ctx).Info("interview created",
		slog.String("interview_id", id),
		slog.String("interview_type", string(typ)),
		slog.String("experience_level", level))
	return iv, nil
}

// SetAnswers normalizes data and upserts it by question index. The interview
// moves to in-progress, or to completed when complete is set. A completed
// interview stays completed.
func (s InterviewService) SetAnswers(ctx domain.Context, interviewID string, data json.RawMessage, complete bool) (SetAnswersResult, error) {
	if !domain.IsObjectID(interviewID) {
		return SetAnswersResult{}, &ValidationError{Message: "Invalid interview id", Fields: map[string]string{"id": "hexadecimal"}}
	}
	if t := bytes.TrimSpace(data); len(t) == 0 || t[0] != '[' {
		return SetAnswersResult{}, &ValidationError{Message: "Answers must be an array", Fields: map[string]string{"data": "array"}}
	}
	release, err := lockInterview(ctx, s.Locker, nil, interviewID, "setanswers")
	if err != nil {
		return SetAnswersResult{}, err
	}
	defer release()
	iv, err := s.Interviews.Get(ctx, interviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SetAnswersResult{}, fmt.Errorf("%w: interview not found", domain.ErrNotFound)
		}
		return SetAnswersResult{}, fmt.Errorf("op=interviews.get: %w", err)
	}

	canonical, warnings := NormalizeAnswers(data)
	now := s.now()
	if len(canonical) > 0 {
		answers := make([]domain.Answer, len(canonical))
		for i, a := range canonical {
			answers[i] = domain.Answer{InterviewID: interviewID, QuestionIndex: a.Index, Text: a.Text, SubmittedAt: now}
		}
		if err := s.Answers.Upsert(ctx, interviewID, answers); err != nil {
			return SetAnswersResult{}, fmt.Errorf("op=interviews.upsert_answers: %w", err)
		}
	}

	switch {
	case complete:
		iv.Complete(now)
	case iv.Status != domain.StatusCompleted:
		iv.Reopen(domain.StatusInProgress, now)
	}
	if err := s.Interviews.Update(ctx, iv); err != nil {
		return SetAnswersResult{}, fmt.Errorf("op=interviews.update: %w", err)
	}
	if len(warnings) > 0 {
		obsctx.LoggerFromContext(ctx).Warn("answers partially skipped",
			slog.String("interview_id", interviewID),
			slog.Int("skipped", len(warnings)))
	}
	return SetAnswersResult{AnswersCount: len(canonical), Status: iv.Status, Warnings: warnings}, nil
}

// Complete marks the interview completed, keeping an earlier completion time.
func (s InterviewService) Complete(ctx domain.Context, interviewID string) (domain.Interview, error) {
	if !domain.IsObjectID(interviewID) {
		return domain.Interview{}, fmt.Errorf("%w: interviewId must be a 24-character hex id", domain.ErrInvalidArgument)
	}
	release, err := lockInterview(ctx, s.Locker, nil, interviewID, "complete")
	if err != nil {
		return domain.Interview{}, err
	}
	defer release()
	iv, err := s.Interviews.Get(ctx, interviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Interview{}, fmt.Errorf("%w: interview not found", domain.ErrNotFound)
		}
		return domain.Interview{}, fmt.Errorf("op=interviews.get: %w", err)
	}
	if iv.Status == domain.StatusCompleted && iv.CompletedAt != nil {
		return iv, nil
	}
	iv.Complete(s.now())
	if err := s.Interviews.Update(ctx, iv); err != nil {
		return domain.Interview{}, fmt.Errorf("op=interviews.update: %w", err)
	}
	return iv, nil
}

// ListForUser returns the user's unfinished interviews, newest first, and
// stats over all of them.
func (s InterviewService) ListForUser(ctx domain.Context, ownerID string, limit int) (UserInterviews, error) {
	if ownerID == "" {
		return UserInterviews{}, domain.ErrUnauthorized
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	all, err := s.Interviews.ListByOwner(ctx, ownerID, domain.InterviewFilter{})
	if err != nil {
		return UserInterviews{}, fmt.Errorf("op=interviews.list: %w", err)
	}
	out := UserInterviews{Interviews: []domain.Interview{}}
	out.Stats.Total = len(all)
	for _, iv := range all {
		switch iv.Status {
		case domain.StatusCompleted:
			out.Stats.Completed++
		case domain.StatusCreated, domain.StatusReady, domain.StatusInProgress:
			out.Stats.InProgress++
		}
		if iv.Status != domain.StatusCompleted && len(out.Interviews) < limit {
			out.Interviews = append(out.Interviews, iv)
		}
	}
	return out, nil
}

// SavePerformance stores a client-computed record for an interview the user
// owns and marks the interview completed. It reports whether the interview
// document was changed.
func (s InterviewService) SavePerformance(ctx domain.Context, ownerID string, in SavePerformanceInput) (string, bool, error) {
	if ownerID == "" {
		return "", false, domain.ErrUnauthorized
	}
	fields := map[string]string{}
	if !domain.IsObjectID(in.InterviewID) {
		fields["interviewId"] = "required"
	}
	if textx.SanitizeText(in.JobTitle) == "" {
		fields["jobTitle"] = "required"
	}
	if textx.SanitizeText(in.CompanyName) == "" {
		fields["companyName"] = "required"
	}
	if math.IsNaN(in.Score) || in.Score < 0 || in.Score > 100 {
		fields["score"] = "range"
	}
	if len(fields) > 0 {
		return "", false, &ValidationError{Message: "Missing required fields", Fields: fields}
	}

	release, err := lockInterview(ctx, s.Locker, nil, in.InterviewID, "save_performance")
	if err != nil {
		return "", false, err
	}
	defer release()
	iv, err := s.owned(ctx, ownerID, in.InterviewID)
	if err != nil {
		return "", false, err
	}
	now := s.now()
	completedAt := now
	if iv.CompletedAt != nil {
		completedAt = *iv.CompletedAt
	}
	typ := in.InterviewType
	if typ == "" {
		typ = iv.InterviewType
	}
	level := in.ExperienceLevel
	if level == "" {
		level = iv.ExperienceLevel
	}
	rec := domain.PerformanceRecord{
		InterviewID:     iv.ID,
		Owner:           iv.Owner.Canonical(),
		JobTitle:        in.JobTitle,
		CompanyName:     in.CompanyName,
		InterviewType:   typ,
		ExperienceLevel: level,
		OverallScore:    round1(in.Score),
		ParameterScores: in.ParameterScores,
		Feedback:        in.Feedback,
		RoundResults:    in.RoundResults,
		TimeSpent:       in.TimeSpent,
		TotalQuestions:  in.TotalQuestions,
		CorrectAnswers:  in.CorrectAnswers,
		Source:          domain.SourceClient,
		CompletedAt:     completedAt,
		CreatedAt:       now,
	}
	id, err := s.Performances.Upsert(ctx, rec)
	if err != nil {
		return "", false, fmt.Errorf("op=interviews.save_performance: %w", err)
	}

	if iv.Status == domain.StatusCompleted && iv.CompletedAt != nil && iv.PerformanceID == id {
		return id, false, nil
	}
	iv.Complete(now)
	iv.PerformanceID = id
	iv.UpdatedAt = now
	if err := s.Interviews.Update(ctx, iv); err != nil {
		return id, false, fmt.Errorf("op=interviews.update: %w", err)
	}
	return id, true, nil
}

// PerformanceStats aggregates the user's performance records.
func (s InterviewService) PerformanceStats(ctx domain.Context, ownerID string) (PerformanceStats, error) {
	if ownerID == "" {
		return PerformanceStats{}, domain.ErrUnauthorized
	}
	recs, err := s.Performances.ListByOwner(ctx, ownerID)
	if err != nil {
		return PerformanceStats{}, fmt.Errorf("op=interviews.performance_stats: %w", err)
	}
	if recs == nil {
		recs = []domain.PerformanceRecord{}
	}
	return PerformanceStats{Performances: recs, Stats: Summarize(recs)}, nil
}

// Summarize computes PerformanceSummary over records ordered newest first.
// ImprovementTrend needs at least six records: the mean of the latest three
// minus the mean of the three before them.
func Summarize(recs []domain.PerformanceRecord) PerformanceSummary {
	sum := PerformanceSummary{TotalInterviews: len(recs), RecentPerformance: []RecentPerformance{}}
	if len(recs) == 0 {
		return sum
	}
	total := 0.0
	params := map[string]float64{}
	paramN := map[string]int{}
	for _, r := range recs {
		total += r.OverallScore
		sum.TotalTimeSpent += r.TimeSpent
		for k, v := range r.ParameterScores {
			params[k] += v
			paramN[k]++
		}
	}
	sum.AverageScore = round1(total / float64(len(recs)))
	if len(recs) >= 6 {
		sum.ImprovementTrend = round1(meanScore(recs[:3]) - meanScore(recs[3:6]))
	}

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	best, worst := math.Inf(-1), math.Inf(1)
	for _, k := range names {
		avg := params[k] / float64(paramN[k])
		if avg > best {
			best, sum.StrongestArea = avg, k
		}
		if avg < worst {
			worst, sum.WeakestArea = avg, k
		}
	}

	for i, r := range recs {
		if i == 5 {
			break
		}
		sum.RecentPerformance = append(sum.RecentPerformance, RecentPerformance{
			InterviewID: r.InterviewID,
			JobTitle:    r.JobTitle,
			CompanyName: r.CompanyName,
			Score:       r.OverallScore,
			CompletedAt: r.CompletedAt,
		})
	}
	return sum
}

func meanScore(recs []domain.PerformanceRecord) float64 {
	t := 0.0
	for _, r := range recs {
		t += r.OverallScore
	}
	return t / float64(len(recs))
}

// Delete removes an interview the user owns with its questions, answers and
// performance record. Others' interviews are reported as not found.
func (s InterviewService) Delete(ctx domain.Context, ownerID, interviewID string) error {
	if ownerID == "" {
		return domain.ErrUnauthorized
	}
	if interviewID == "" {
		return fmt.Errorf("%w: interviewId is required", domain.ErrInvalidArgument)
	}
	if !domain.IsObjectID(interviewID) {
		return fmt.Errorf("%w: interview not found", domain.ErrNotFound)
	}
	release, err := lockInterview(ctx, s.Locker, nil, interviewID, "delete")
	if err != nil {
		return err
	}
	defer release()
	if _, err := s.owned(ctx, ownerID, interviewID); err != nil {
		return err
	}
	if err := s.QuestionSets.Delete(ctx, interviewID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=interviews.delete_questions: %w", err)
	}
	if err := s.Answers.DeleteAll(ctx, interviewID); err != nil {
		return fmt.Errorf("op=interviews.delete_answers: %w", err)
	}
	if err := s.Performances.Delete(ctx, interviewID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=interviews.delete_performance: %w", err)
	}
	if err := s.Interviews.Delete(ctx, interviewID); err != nil {
		return fmt.Errorf("op=interviews.delete: %w", err)
	}
	publish(ctx, s.Events, domain.Event{Type: domain.EventInterviewDeleted, InterviewID: interviewID, OccurredAt: s.now()})
	obsctx.LoggerFromContext(ctx).Info("interview deleted", slog.String("interview_id", interviewID))
	return nil
}

// owned loads the interview and hides it unless ownerID owns it.
func (s InterviewService) owned(ctx domain.Context, ownerID, interviewID string) (domain.Interview, error) {
	iv, err := s.Interviews.Get(ctx, interviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Interview{}, fmt.Errorf("%w: interview not found", domain.ErrNotFound)
		}
		return domain.Interview{}, fmt.Errorf("op=interviews.get: %w", err)
	}
	if iv.Owner.ID != ownerID {
		return domain.Interview{}, fmt.Errorf("%w: interview not found", domain.ErrNotFound)
	}
	return iv, nil
}

func (s InterviewService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
