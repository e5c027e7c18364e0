package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/heuristic"
	"github.com/fairyhunter13/interview-prep/internal/adapter/httpserver"
	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/memory"
	"github.com/fairyhunter13/interview-prep/internal/config"
	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/service/lock"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

const (
	testSecret = "test-secret"
	alice      = "65f0a11ce0000000000000a1"
	bob        = "65f0b0b000000000000000b2"
)

// bankProvider answers every quota with generated prompts.
type bankProvider struct{ err error }

func (bankProvider) Name() string { return "groq" }

func (p bankProvider) Generate(_ context.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	if p.err != nil {
		return nil, p.err
	}
	var out []domain.Question
	for _, q := range req.Quotas {
		for i := 0; i < q.Count; i++ {
			out = append(out, domain.Question{
				Category:       q.Category,
				Prompt:         fmt.Sprintf("Explain %s topic %d for %s", q.Category, i+1, req.JobTitle),
				ExpectedAnswer: "hash map lookup with linear time complexity",
			})
		}
	}
	return out, nil
}

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	store  domain.Store
	tokens *httpserver.SessionManager
}

func newHarness(t *testing.T, providers ...domain.QuestionProvider) *harness {
	t.Helper()
	st := memory.New().Domain()
	locker := lock.NewKeyed()
	fb := usecase.NewFallbackController(providers, heuristic.MustDefault(), nil,
		func(int) time.Duration { return time.Second }, nil)
	sm := httpserver.NewSessionManager(testSecret, false)
	s := &httpserver.Server{
		Cfg:        config.Config{AppEnv: "test", MaxBodyKB: 64},
		Interviews: usecase.NewInterviewService(st, locker, domain.NopPublisher{}),
		Generation: usecase.NewGenerationService(st, locker, fb, domain.NopPublisher{}, nil),
		Scoring:    usecase.NewScoringService(st, locker, usecase.HeuristicScorer{Now: time.Now}, domain.NopPublisher{}, nil),
		Repair:     usecase.NewRepairService(st, domain.NopPublisher{}, nil),
		Health:     usecase.NewHealthService(usecase.Probe{Name: "store", Ping: st.Ping}),
		Sessions:   sm,
	}
	r := chi.NewRouter()
	r.Use(httpserver.RequestID(), httpserver.Recoverer(), sm.Session)
	r.Get("/readyz", s.ReadyzHandler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/create-interview", s.CreateInterviewHandler())
		r.Post("/generate-questions", s.GenerateQuestionsHandler(""))
		r.Post("/gemini-generate-questions", s.GenerateQuestionsHandler("gemini"))
		r.Post("/fast-feedback", s.FastFeedbackHandler())
		r.Get("/fast-feedback", s.FeedbackStatusHandler())
		r.Post("/setanswers", s.SetAnswersHandler())
		r.Post("/complete-interview", s.CompleteInterviewHandler())
		r.Group(func(r chi.Router) {
			r.Use(httpserver.RequireSession)
			r.Get("/user-interviews", s.UserInterviewsHandler())
			r.Post("/save-performance", s.SavePerformanceHandler())
			r.Get("/performance-stats", s.PerformanceStatsHandler())
			r.Post("/fix-completed-interviews", s.FixCompletedHandler())
			r.Get("/interview-debug", s.InterviewDebugHandler())
			r.Delete("/delete-interview", s.DeleteInterviewHandler())
		})
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &harness{t: t, srv: ts, store: st, tokens: sm}
}

// do sends body as JSON, authenticated as user when non-empty, and decodes
// the response into a generic map.
func (h *harness) do(method, path, user string, body any) (int, map[string]any) {
	h.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		tok, err := h.tokens.Issue(user)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func errCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	c, _ := e["code"].(string)
	return c
}

func (h *harness) create(user string, typ, level string) string {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/api/create-interview", user, map[string]any{
		"jobTitle":        "Backend Engineer",
		"jobDesc":         "Build APIs",
		"companyName":     "Acme",
		"skills":          []string{"go", "sql"},
		"interviewType":   typ,
		"experienceLevel": level,
	})
	require.Equal(h.t, http.StatusCreated, code, body)
	id, _ := body["id"].(string)
	require.True(h.t, domain.IsObjectID(id))
	return id
}

func TestDSAInterviewEndToEnd(t *testing.T) {
	h := newHarness(t, bankProvider{})

	code, body := h.do(http.MethodPost, "/api/create-interview", alice, map[string]any{
		"jobTitle": "SWE", "jobDesc": "Solve problems", "companyName": "Acme",
		"skills": "go, algorithms", "interviewType": "dsa", "experienceLevel": "entry",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "Interview created and ready to start!", body["message"])
	assert.Equal(t, "ready", body["status"])
	assert.EqualValues(t, 2, body["questionsCount"])
	assert.Equal(t, map[string]any{"dsa": float64(2)}, body["questionDistribution"])
	assert.Equal(t, false, body["degraded"])
	id := body["id"].(string)

	code, body = h.do(http.MethodPost, "/api/generate-questions", "", map[string]any{"interviewId": id})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "cached", body["provider"])
	qs := body["questions"].([]any)
	require.Len(t, qs, 2)
	for i, raw := range qs {
		q := raw.(map[string]any)
		assert.EqualValues(t, i, q["index"])
		assert.Equal(t, "dsa", q["category"])
		assert.EqualValues(t, 45, q["timeLimit"])
		assert.EqualValues(t, 20, q["points"])
	}

	code, body = h.do(http.MethodPost, "/api/setanswers", "", map[string]any{
		"id": id,
		"data": []any{
			map[string]any{"questionIndex": 0, "answer": "Use a hash map lookup to reach linear time complexity."},
			"I would sort first and then apply two pointers over the array.",
		},
		"complete": true,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["answersCount"])
	assert.EqualValues(t, 200, body["status"])

	code, body = h.do(http.MethodPost, "/api/fast-feedback", "", map[string]any{"interviewId": id})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	ins := body["insights"].(map[string]any)
	overall := ins["overallScore"].(float64)
	assert.True(t, overall > 0 && overall <= 100, "overall %v", overall)
	assert.Len(t, ins["questionScores"], 2)
	assert.Contains(t, ins["parameterScores"], "Technical Knowledge")

	code, body = h.do(http.MethodGet, "/api/fast-feedback?interviewId="+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["feedbackReady"])
	assert.Equal(t, overall, body["insights"].(map[string]any)["overallScore"])
}

func TestCreateInterviewValidation(t *testing.T) {
	h := newHarness(t, bankProvider{})

	code, body := h.do(http.MethodPost, "/api/create-interview", "", map[string]any{"jobTitle": "x"})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", errCode(body))
	e := body["error"].(map[string]any)
	assert.Equal(t, "Missing required fields", e["message"])
	assert.Equal(t, map[string]any{"jobDesc": "required", "companyName": "required", "skills": "required"}, e["details"])

	code, body = h.do(http.MethodPost, "/api/create-interview", "", map[string]any{
		"jobDesc": "d", "companyName": "c", "skills": []string{"go"}, "interviewType": "panel",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", errCode(body))

	code, _ = h.do(http.MethodPost, "/api/create-interview", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateDefaultsToMixed(t *testing.T) {
	h := newHarness(t, bankProvider{})
	code, body := h.do(http.MethodPost, "/api/create-interview", "", map[string]any{
		"jobDesc": "d", "companyName": "c", "skills": []string{"go"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 16, body["questionsCount"])
	assert.Equal(t, map[string]any{"technical": 6.0, "behavioral": 4.0, "aptitude": 4.0, "dsa": 2.0}, body["questionDistribution"])
}

func TestGenerateDegradedIs206(t *testing.T) {
	h := newHarness(t, bankProvider{err: fmt.Errorf("%w: slow", domain.ErrUpstreamTimeout)})
	id := h.create("", "technical", "senior")

	code, body := h.do(http.MethodPost, "/api/generate-questions", "", map[string]any{"interviewId": id, "regenerate": true})
	require.Equal(t, http.StatusPartialContent, code, body)
	assert.Equal(t, true, body["degraded"])
	assert.EqualValues(t, 12, body["questionsCount"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "fallback", meta["provenance"])
}

func TestGenerateErrors(t *testing.T) {
	h := newHarness(t, bankProvider{})

	code, body := h.do(http.MethodPost, "/api/generate-questions", "", map[string]any{"interviewId": "abc"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]any{"interviewId": "len"}, body["error"].(map[string]any)["details"])

	code, body = h.do(http.MethodPost, "/api/generate-questions", "", map[string]any{"interviewId": "65f0c0ffee0000000000abcd"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errCode(body))

	code, _ = h.do(http.MethodPost, "/api/gemini-generate-questions", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFastFeedbackErrors(t *testing.T) {
	h := newHarness(t, bankProvider{})
	id := h.create("", "aptitude", "mid")

	code, body := h.do(http.MethodPost, "/api/fast-feedback", "", map[string]any{"interviewId": id})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "NOT_READY", errCode(body))

	code, _ = h.do(http.MethodPost, "/api/complete-interview", "", map[string]any{"interviewId": id})
	require.Equal(t, http.StatusOK, code)

	code, body = h.do(http.MethodPost, "/api/fast-feedback", "", map[string]any{"interviewId": id})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NO_ANSWERS", errCode(body))

	code, body = h.do(http.MethodPost, "/api/fast-feedback", "", map[string]any{"interviewId": "65f0c0ffee0000000000abcd"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errCode(body))

	code, _ = h.do(http.MethodPost, "/api/fast-feedback", "", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(http.MethodGet, "/api/fast-feedback", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(http.MethodGet, "/api/fast-feedback?interviewId="+id, "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["feedbackReady"])
	assert.NotContains(t, body, "insights")
}

func TestSetAnswersRejectsNonArray(t *testing.T) {
	h := newHarness(t, bankProvider{})
	id := h.create("", "behavioral", "mid")

	code, body := h.do(http.MethodPost, "/api/setanswers", "", map[string]any{"id": id, "data": map[string]any{"0": "x"}})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, _ = h.do(http.MethodPost, "/api/setanswers", "", map[string]any{"data": []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(http.MethodPost, "/api/setanswers", "", map[string]any{"id": id, "data": []any{"first", nil, "third"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["answersCount"])
	assert.Equal(t, "in-progress", body["interviewStatus"])
	assert.Len(t, body["warnings"], 1)
}

func TestAuthenticatedRoutesRequireSession(t *testing.T) {
	h := newHarness(t, bankProvider{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/user-interviews"},
		{http.MethodPost, "/api/save-performance"},
		{http.MethodGet, "/api/performance-stats"},
		{http.MethodPost, "/api/fix-completed-interviews"},
		{http.MethodGet, "/api/interview-debug"},
		{http.MethodDelete, "/api/delete-interview?interviewId=65f0c0ffee0000000000abcd"},
	} {
		code, body := h.do(tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, tc.path)
		assert.Equal(t, "UNAUTHORIZED", errCode(body), tc.path)
	}
}

func TestUserInterviewsAndStats(t *testing.T) {
	h := newHarness(t, bankProvider{})
	first := h.create(alice, "technical", "mid")
	second := h.create(alice, "behavioral", "mid")
	h.create(bob, "aptitude", "mid")

	code, body := h.do(http.MethodPost, "/api/save-performance", alice, map[string]any{
		"interviewId": first, "jobTitle": "Backend Engineer", "companyName": "Acme", "score": 72.5,
		"timeSpent": 1200, "totalQuestions": 12, "correctAnswers": 9,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["interviewUpdated"])
	perfID := body["performanceId"].(string)
	assert.NotEmpty(t, perfID)

	code, body = h.do(http.MethodGet, "/api/user-interviews?limit=5", alice, nil)
	require.Equal(t, http.StatusOK, code)
	ivs := body["interviews"].([]any)
	require.Len(t, ivs, 1)
	assert.Equal(t, second, ivs[0].(map[string]any)["_id"])
	assert.Equal(t, map[string]any{"total": 2.0, "completed": 1.0, "inProgress": 1.0}, body["stats"])

	code, _ = h.do(http.MethodGet, "/api/user-interviews?limit=zero", alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(http.MethodGet, "/api/performance-stats", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["performances"], 1)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["totalInterviews"])
	assert.EqualValues(t, 72.5, stats["averageScore"])
	assert.EqualValues(t, 0, stats["improvementTrend"])

	code, _ = h.do(http.MethodPost, "/api/save-performance", bob, map[string]any{
		"interviewId": first, "jobTitle": "x", "companyName": "y", "score": 10,
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = h.do(http.MethodPost, "/api/save-performance", alice, map[string]any{"interviewId": first, "jobTitle": "x", "companyName": "y"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing required fields", body["error"].(map[string]any)["message"])
}

func TestDeleteInterview(t *testing.T) {
	h := newHarness(t, bankProvider{})
	id := h.create(alice, "technical", "mid")

	code, _ := h.do(http.MethodDelete, "/api/delete-interview", alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(http.MethodDelete, "/api/delete-interview?interviewId="+id, bob, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body := h.do(http.MethodDelete, "/api/delete-interview", alice, map[string]any{"interviewId": id})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])

	_, err := h.store.Interviews.Get(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.store.QuestionSets.Get(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFixCompletedAndDebug(t *testing.T) {
	h := newHarness(t, bankProvider{})
	id := h.create(alice, "technical", "mid")
	ctx := context.Background()
	_, err := h.store.Performances.Upsert(ctx, domain.PerformanceRecord{
		InterviewID: id, Owner: usecase.OwnerFor(alice), OverallScore: 50, Source: domain.SourceClient,
		CompletedAt: time.Now(), CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	code, body := h.do(http.MethodGet, "/api/interview-debug?interviewId="+id, alice, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["debug"])

	code, body = h.do(http.MethodPost, "/api/fix-completed-interviews", alice, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["fixedInterviews"])
	iv, err := h.store.Interviews.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, iv.Status)
	assert.NotNil(t, iv.CompletedAt)
}

func TestReadyz(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["checks"], 1)
}

func TestRequestIDEchoed(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/readyz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-Id"))

	resp, err = h.srv.Client().Get(h.srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Request-Id"), 26)
}
