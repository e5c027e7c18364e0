package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/config"
	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Interviews usecase.InterviewService
	Generation usecase.GenerationService
	Scoring    usecase.ScoringService
	Repair     usecase.RepairService
	Health     usecase.HealthService
	Sessions   *SessionManager
}

func (s *Server) bodyLimit() int64 {
	if s.Cfg.MaxBodyKB > 0 {
		return s.Cfg.MaxBodyKB * 1024
	}
	return 512 * 1024
}

type interviewView struct {
	ID                string     `json:"_id"`
	UserID            string     `json:"userId,omitempty"`
	JobTitle          string     `json:"jobTitle"`
	JobDesc           string     `json:"jobDesc"`
	CompanyName       string     `json:"companyName"`
	Skills            []string   `json:"skills"`
	ProjectContext    []string   `json:"projectContext,omitempty"`
	WorkExDetails     []string   `json:"workExDetails,omitempty"`
	InterviewType     string     `json:"interviewType"`
	ExperienceLevel   string     `json:"experienceLevel"`
	Status            string     `json:"status"`
	QuestionsCount    int        `json:"questionsCount"`
	EstimatedDuration int        `json:"estimatedDuration"`
	PerformanceID     string     `json:"performanceId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	CompletedAt       *time.Time `json:"completedAt"`
}

func viewOf(iv domain.Interview) interviewView {
	return interviewView{
		ID:                iv.ID,
		UserID:            iv.Owner.ID,
		JobTitle:          iv.JobTitle,
		JobDesc:           iv.JobDesc,
		CompanyName:       iv.CompanyName,
		Skills:            iv.Skills,
		ProjectContext:    iv.ProjectContext,
		WorkExDetails:     iv.WorkExDetails,
		InterviewType:     string(iv.InterviewType),
		ExperienceLevel:   iv.ExperienceLevel,
		Status:            string(iv.Status),
		QuestionsCount:    iv.QuestionsCount,
		EstimatedDuration: iv.EstimatedDuration,
		PerformanceID:     iv.PerformanceID,
		CreatedAt:         iv.CreatedAt,
		UpdatedAt:         iv.UpdatedAt,
		CompletedAt:       iv.CompletedAt,
	}
}

// CreateInterviewHandler stores a new interview and generates its questions
// in the same request.
func (s *Server) CreateInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createInterviewRequest
		if err := decode(w, r, s.bodyLimit(), &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		ctx := r.Context()
		iv, err := s.Interviews.Create(ctx, UserFrom(ctx), usecase.CreateInput{
			JobTitle:        req.JobTitle,
			JobDesc:         req.JobDesc,
			CompanyName:     req.CompanyName,
			Skills:          req.Skills,
			ProjectContext:  req.ProjectContext,
			WorkExDetails:   req.WorkExDetails,
			ExperienceLevel: req.ExperienceLevel,
			InterviewType:   domain.InterviewType(strings.ToLower(strings.TrimSpace(req.InterviewType))),
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.Generation.Generate(ctx, iv.ID, false)
		if err != nil {
			writeError(w, r, err, map[string]string{"interviewId": iv.ID})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":              "Interview created and ready to start!",
			"id":                   iv.ID,
			"status":               string(domain.StatusReady),
			"questionsCount":       len(res.QuestionSet.Questions),
			"questionDistribution": res.Breakdown.Categories,
			"degraded":             res.Degraded,
		})
	}
}

// GenerateQuestionsHandler generates or returns the cached question set.
// preferred, when set, moves that provider to the front of the fallback order.
func (s *Server) GenerateQuestionsHandler(preferred string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := decode(w, r, s.bodyLimit(), &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.Generation.GenerateWith(r.Context(), req.InterviewID, req.Regenerate, preferred)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		msg := "Questions generated successfully"
		if res.Cached {
			msg = "Questions already generated"
		}
		status := http.StatusOK
		if res.Degraded {
			status = http.StatusPartialContent
		}
		qs := res.QuestionSet
		writeJSON(w, status, map[string]any{
			"message":        msg,
			"questionsCount": len(qs.Questions),
			"questions":      qs.Questions,
			"provider":       res.Provider,
			"degraded":       res.Degraded,
			"metadata": map[string]any{
				"interviewId": qs.InterviewID,
				"generatedAt": qs.GeneratedAt,
				"provenance":  qs.Provenance,
				"regenerated": qs.Regenerated,
				"cached":      res.Cached,
				"attempts":    res.Attempts,
			},
			"breakdown": res.Breakdown,
		})
	}
}

func insightsOf(p domain.PerformanceRecord) map[string]any {
	return map[string]any{
		"overallScore":    p.OverallScore,
		"parameterScores": p.ParameterScores,
		"questionScores":  p.QuestionScores,
		"strengths":       p.Feedback.Strengths,
		"improvements":    p.Feedback.Improvements,
		"recommendations": p.Feedback.Recommendations,
		"summary":         p.Feedback.Overall,
		"metadata": map[string]any{
			"interviewId":    p.InterviewID,
			"performanceId":  p.ID,
			"totalQuestions": p.TotalQuestions,
			"correctAnswers": p.CorrectAnswers,
			"timeSpent":      p.TimeSpent,
			"roundResults":   p.RoundResults,
			"source":         p.Source,
			"completedAt":    p.CompletedAt,
		},
	}
}

// FastFeedbackHandler scores a completed interview.
func (s *Server) FastFeedbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req interviewIDRequest
		if err := decode(w, r, s.bodyLimit(), &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		start := time.Now()
		perf, err := s.Scoring.Score(r.Context(), req.InterviewID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"message":  "Feedback generated successfully",
			"insights": insightsOf(perf),
			"performance": map[string]any{
				"processingTime": time.Since(start).Milliseconds(),
				"aiProvider":     "heuristic",
			},
		})
	}
}

// FeedbackStatusHandler reports whether feedback exists without scoring.
func (s *Server) FeedbackStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("interviewId"))
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: interviewId is required", domain.ErrInvalidArgument), map[string]string{"interviewId": "required"})
			return
		}
		ready, perf, err := s.Scoring.FeedbackStatus(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		body := map[string]any{"success": true, "feedbackReady": ready}
		if perf != nil {
			body["insights"] = insightsOf(*perf)
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// SetAnswersHandler stores a batch of answers.
func (s *Server) SetAnswersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setAnswersRequest
		if err := decode(w, r, s.bodyLimit(), &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.Interviews.SetAnswers(r.Context(), req.ID, req.Data, req.Complete)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		warnings := make([]string, 0, len(res.Warnings))
		for _, wn := range res.Warnings {
			warnings = append(warnings, wn.String())
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":         "Answers saved successfully",
			"status":          http.StatusOK,
			"interviewStatus": res.Status,
			"answersCount":    res.AnswersCount,
			"warnings":        warnings,
		})
	}
}

// CompleteInterviewHandler marks an interview completed.
func (s *Server) CompleteInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req interviewIDRequest
		if err := decode(w, r, s.bodyLimit(), &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		iv, err := s.Interviews.Complete(r.Context(), req.InterviewID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": iv.Status, "completedAt": iv.CompletedAt})
	}
}

// UserInterviewsHandler lists the session user's unfinished interviews.
func (s *Server) UserInterviewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := usecase.DefaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidArgument), map[string]string{"limit": "min"})
				return
			}
			limit = n
		}
		res, err := s.Interviews.ListForUser(r.Context(), UserFrom(r.Context()), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]interviewView, 0, len(res.Interviews))
		for _, iv := range res.Interviews {
			views = append(views, viewOf(iv))
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "interviews": views, "stats": res.Stats})
	}
}

// SavePerformanceHandler stores a client-computed performance record.
func (s *Server) SavePerformanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req savePerformanceRequest
		if err := decode(w, r, s.bodyLimit(), &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		id, updated, err := s.Interviews.SavePerformance(r.Context(), UserFrom(r.Context()), usecase.SavePerformanceInput{
			InterviewID:     req.InterviewID,
			JobTitle:        req.JobTitle,
			CompanyName:     req.CompanyName,
			Score:           *req.Score,
			InterviewType:   domain.InterviewType(req.InterviewType),
			ExperienceLevel: req.ExperienceLevel,
			ParameterScores: req.ParameterScores,
			Feedback:        req.Feedback,
			RoundResults:    req.RoundResults,
			TimeSpent:       req.TimeSpent,
			TotalQuestions:  req.TotalQuestions,
			CorrectAnswers:  req.CorrectAnswers,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "performanceId": id, "interviewUpdated": updated})
	}
}

// PerformanceStatsHandler aggregates the session user's performance records.
func (s *Server) PerformanceStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Interviews.PerformanceStats(r.Context(), UserFrom(r.Context()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "performances": res.Performances, "stats": res.Stats})
	}
}

// FixCompletedHandler repairs the session user's interviews.
func (s *Server) FixCompletedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.Repair.Repair(r.Context(), usecase.RepairScope{OwnerID: UserFrom(r.Context())})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          true,
			"message":          fmt.Sprintf("Fixed %d interviews, converted %d user ids", rep.FixedCount, rep.ConvertedCount),
			"fixedInterviews":  rep.FixedCount,
			"convertedUserIds": rep.ConvertedCount,
			"scanned":          rep.Scanned,
		})
	}
}

// InterviewDebugHandler reports inconsistencies for the session user.
func (s *Server) InterviewDebugHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.Repair.Diagnose(r.Context(), UserFrom(r.Context()), strings.TrimSpace(r.URL.Query().Get("interviewId")))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "debug": rep})
	}
}

// DeleteInterviewHandler deletes an interview the session user owns. The id
// comes from the query string or a JSON body.
func (s *Server) DeleteInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("interviewId"))
		if id == "" && r.ContentLength != 0 {
			var req struct {
				InterviewID string `json:"interviewId"`
			}
			if err := decode(w, r, s.bodyLimit(), &req, true); err != nil {
				writeError(w, r, err, nil)
				return
			}
			id = strings.TrimSpace(req.InterviewID)
		}
		if err := s.Interviews.Delete(r.Context(), UserFrom(r.Context()), id); err != nil {
			details := any(nil)
			if errors.Is(err, domain.ErrInvalidArgument) {
				details = map[string]string{"interviewId": "required"}
			}
			writeError(w, r, err, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Interview deleted successfully"})
	}
}

// ReadyzHandler runs the readiness probes.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := s.Health.Readiness(r.Context())
		st := http.StatusOK
		if !usecase.Ready(checks) {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// DevSessionHandler issues a session for an arbitrary user id. It is only
// routed in the dev environment.
func (s *Server) DevSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"userId" validate:"required,len=24,hexadecimal"`
		}
		if err := decode(w, r, s.bodyLimit(), &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		tok, err := s.Sessions.Issue(req.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		s.Sessions.SetSessionCookie(w, tok)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": tok})
	}
}
