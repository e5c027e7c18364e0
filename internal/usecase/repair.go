package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
)

// RepairScope limits a repair run. An empty OwnerID repairs every interview.
type RepairScope struct {
	OwnerID string
}

// RepairReport counts what a repair run changed.
type RepairReport struct {
	FixedCount     int `json:"fixedCount"`
	ConvertedCount int `json:"convertedCount"`
	Scanned        int `json:"scanned"`
	// Unconvertible lists interviews whose legacy owner id is not an ObjectId.
	Unconvertible []string `json:"unconvertible,omitempty"`
}

// RepairService reconciles interview status and owner references with the
// underlying answers and performance records.
type RepairService struct {
	Interviews   domain.InterviewRepository
	QuestionSets domain.QuestionSetRepository
	Answers      domain.AnswerRepository
	Performances domain.PerformanceRepository
	// Locker, when set, guards each write with the interview lock. Busy
	// interviews are skipped and picked up by the next run.
	Locker   domain.Locker
	Events   domain.EventPublisher
	Recorder Recorder
	Now      func() time.Time
}

// NewRepairService constructs a RepairService over st.
func NewRepairService(st domain.Store, events domain.EventPublisher, rec Recorder) RepairService {
	return RepairService{
		Interviews:   st.Interviews,
		QuestionSets: st.QuestionSets,
		Answers:      st.Answers,
		Performances: st.Performances,
		Events:       events,
		Recorder:     rec,
		Now:          time.Now,
	}
}

// Repair writes only interviews whose desired state differs from the stored
// one, so a second run reports nothing fixed.
func (s RepairService) Repair(ctx domain.Context, scope RepairScope) (RepairReport, error) {
	lg := obsctx.LoggerFromContext(ctx)
	var (
		ivs []domain.Interview
		err error
	)
	if scope.OwnerID != "" {
		ivs, err = s.Interviews.ListByOwner(ctx, scope.OwnerID, domain.InterviewFilter{})
	} else {
		ivs, err = s.Interviews.ListAll(ctx)
	}
	if err != nil {
		return RepairReport{}, fmt.Errorf("op=repair.list: %w", err)
	}

	var report RepairReport
	for _, iv := range ivs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("op=repair: %w", err)
		}
		report.Scanned++
		desired, fixed, converted, err := s.desired(ctx, iv)
		if err != nil {
			return report, err
		}
		if iv.Owner.IsLegacy() && !converted {
			report.Unconvertible = append(report.Unconvertible, iv.ID)
		}
		if !fixed && !converted {
			continue
		}
		desired, fixed, converted, err = s.apply(ctx, iv.ID)
		if errors.Is(err, domain.ErrConflict) {
			lg.Info("interview busy, repair deferred", slog.String("interview_id", iv.ID))
			continue
		}
		if err != nil {
			return report, err
		}
		if !fixed && !converted {
			continue
		}
		if fixed {
			report.FixedCount++
		}
		if converted {
			report.ConvertedCount++
		}
		lg.Info("interview repaired",
			slog.String("interview_id", iv.ID),
			slog.String("status", string(desired.Status)),
			slog.Bool("status_fixed", fixed),
			slog.Bool("owner_converted", converted))
		publish(ctx, s.Events, domain.Event{
			Type:        domain.EventInterviewRepaired,
			InterviewID: iv.ID,
			OccurredAt:  desired.UpdatedAt,
			Attributes:  map[string]any{"statusFixed": fixed, "ownerConverted": converted},
		})
	}

	rec := recorderOrNop(s.Recorder)
	rec.Repaired("status", report.FixedCount)
	rec.Repaired("owner", report.ConvertedCount)
	if len(report.Unconvertible) > 0 {
		lg.Warn("legacy owner ids left unconverted", slog.Int("count", len(report.Unconvertible)))
	}
	return report, nil
}

// apply re-reads the interview under its lock and writes the consistent form
// when it still differs from the stored one.
func (s RepairService) apply(ctx domain.Context, interviewID string) (domain.Interview, bool, bool, error) {
	release, err := lockInterview(ctx, s.Locker, s.Recorder, interviewID, "repair")
	if err != nil {
		return domain.Interview{}, false, false, err
	}
	defer release()
	iv, err := s.Interviews.Get(ctx, interviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return iv, false, false, nil
		}
		return iv, false, false, fmt.Errorf("op=repair.get: %w", err)
	}
	desired, fixed, converted, err := s.desired(ctx, iv)
	if err != nil || (!fixed && !converted) {
		return desired, false, false, err
	}
	desired.UpdatedAt = s.now()
	if err := s.Interviews.Update(ctx, desired); err != nil {
		return desired, false, false, fmt.Errorf("op=repair.update: %w", err)
	}
	return desired, fixed, converted, nil
}

// desired computes the consistent form of iv and whether its status fields or
// owner reference changed.
func (s RepairService) desired(ctx domain.Context, iv domain.Interview) (domain.Interview, bool, bool, error) {
	d := iv
	converted := false
	if iv.Owner.IsLegacy() && domain.IsObjectID(iv.Owner.ID) {
		d.Owner = iv.Owner.Canonical()
		converted = true
	}

	perf, err := s.Performances.GetByInterview(ctx, iv.ID)
	hasPerf := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return iv, false, false, fmt.Errorf("op=repair.get_performance: %w", err)
	}

	finished := hasPerf
	if !finished && iv.Status == domain.StatusInProgress {
		if finished, err = s.fullyAnswered(ctx, iv); err != nil {
			return iv, false, false, err
		}
	}

	if finished {
		d.Status = domain.StatusCompleted
		if hasPerf && d.PerformanceID != perf.ID {
			d.PerformanceID = perf.ID
		}
		if d.CompletedAt == nil {
			t := s.now()
			if hasPerf && !perf.CompletedAt.IsZero() {
				t = perf.CompletedAt.UTC()
			}
			d.CompletedAt = &t
		}
	}
	if d.Status == domain.StatusCompleted && d.CompletedAt == nil {
		t := s.now()
		d.CompletedAt = &t
	}
	if d.Status != domain.StatusCompleted && d.CompletedAt != nil {
		d.CompletedAt = nil
	}

	fixed := d.Status != iv.Status ||
		d.PerformanceID != iv.PerformanceID ||
		!reflect.DeepEqual(d.CompletedAt, iv.CompletedAt)
	return d, fixed, converted, nil
}

// fullyAnswered reports whether every question of the stored set, or of the
// planned count when no set is stored, has a non-blank answer.
func (s RepairService) fullyAnswered(ctx domain.Context, iv domain.Interview) (bool, error) {
	total := iv.QuestionsCount
	if s.QuestionSets != nil {
		qs, err := s.QuestionSets.Get(ctx, iv.ID)
		switch {
		case err == nil:
			total = len(qs.Questions)
		case !errors.Is(err, domain.ErrNotFound):
			return false, fmt.Errorf("op=repair.get_questions: %w", err)
		}
	}
	if total <= 0 {
		return false, nil
	}
	stored, err := s.Answers.List(ctx, iv.ID)
	if err != nil {
		return false, fmt.Errorf("op=repair.list_answers: %w", err)
	}
	answered := 0
	for _, a := range NormalizeStored(stored) {
		if a.Index < total && strings.TrimSpace(a.Text) != "" {
			answered++
		}
	}
	return answered == total, nil
}

func (s RepairService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Debug issue messages.
const (
	IssueNotFound          = "Interview not found"
	IssueStringOwner       = "Interview has string userId instead of ObjectId"
	IssuePerfNotCompleted  = "Interview has performance data but status is not completed"
	IssueCompletedNoPerf   = "Interview is completed but no performance data found"
	issueStringOwnersCount = "%d interviews have string userId"
)

// DebugInterview is the interview summary of a DebugReport.
type DebugInterview struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	UserIDType     string     `json:"userIdType"`
	CompletedAt    *time.Time `json:"completedAt"`
	PerformanceID  string     `json:"performanceId,omitempty"`
	QuestionsCount int        `json:"questionsCount"`
	HasPerformance bool       `json:"hasPerformanceData"`
}

// DebugReport describes the consistency of a user's interviews.
type DebugReport struct {
	UserID                      string          `json:"userId"`
	InterviewID                 string          `json:"interviewId,omitempty"`
	Interview                   *DebugInterview `json:"interview,omitempty"`
	AllUserInterviewsCount      int             `json:"allUserInterviewsCount"`
	CompletedInterviewsCount    int             `json:"completedInterviewsCount"`
	StringUserIDInterviewsCount int             `json:"stringUserIdInterviewsCount"`
	Issues                      []string        `json:"issues"`
}

// Diagnose reports inconsistencies without changing anything. An interview
// owned by someone else is reported as not found.
func (s RepairService) Diagnose(ctx domain.Context, userID, interviewID string) (DebugReport, error) {
	report := DebugReport{UserID: userID, InterviewID: interviewID, Issues: []string{}}
	ivs, err := s.Interviews.ListByOwner(ctx, userID, domain.InterviewFilter{})
	if err != nil {
		return report, fmt.Errorf("op=repair.diagnose_list: %w", err)
	}
	report.AllUserInterviewsCount = len(ivs)
	for _, iv := range ivs {
		if iv.Status == domain.StatusCompleted {
			report.CompletedInterviewsCount++
		}
		if iv.Owner.IsLegacy() {
			report.StringUserIDInterviewsCount++
		}
	}

	if interviewID != "" {
		iv, err := s.Interviews.Get(ctx, interviewID)
		switch {
		case errors.Is(err, domain.ErrNotFound) || (err == nil && iv.Owner.ID != userID):
			report.Issues = append(report.Issues, IssueNotFound)
		case err != nil:
			return report, fmt.Errorf("op=repair.diagnose_get: %w", err)
		default:
			_, perr := s.Performances.GetByInterview(ctx, interviewID)
			if perr != nil && !errors.Is(perr, domain.ErrNotFound) {
				return report, fmt.Errorf("op=repair.diagnose_performance: %w", perr)
			}
			hasPerf := perr == nil
			idType := "ObjectId"
			if iv.Owner.IsLegacy() {
				idType = "string"
				report.Issues = append(report.Issues, IssueStringOwner)
			}
			if hasPerf && iv.Status != domain.StatusCompleted {
				report.Issues = append(report.Issues, IssuePerfNotCompleted)
			}
			if !hasPerf && iv.Status == domain.StatusCompleted {
				report.Issues = append(report.Issues, IssueCompletedNoPerf)
			}
			report.Interview = &DebugInterview{
				ID:             iv.ID,
				Status:         string(iv.Status),
				UserIDType:     idType,
				CompletedAt:    iv.CompletedAt,
				PerformanceID:  iv.PerformanceID,
				QuestionsCount: iv.QuestionsCount,
				HasPerformance: hasPerf,
			}
		}
	}
	if report.StringUserIDInterviewsCount > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf(issueStringOwnersCount, report.StringUserIDInterviewsCount))
	}
	return report, nil
}
