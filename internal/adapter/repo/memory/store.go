// Package memory is an in-process document store. It backs tests and the
// default single-node deployment.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// Store holds every collection behind one mutex, so each call is atomic.
type Store struct {
	mu           sync.RWMutex
	interviews   map[string]domain.Interview
	questionSets map[string]domain.QuestionSet
	answers      map[string]map[int]domain.Answer
	performances map[string]domain.PerformanceRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{
		interviews:   map[string]domain.Interview{},
		questionSets: map[string]domain.QuestionSet{},
		answers:      map[string]map[int]domain.Answer{},
		performances: map[string]domain.PerformanceRecord{},
	}
}

// Domain exposes the store as the repository bundle.
func (s *Store) Domain() domain.Store {
	return domain.Store{
		Interviews:   interviewRepo{s},
		QuestionSets: questionSetRepo{s},
		Answers:      answerRepo{s},
		Performances: performanceRepo{s},
		Ping:         func(context.Context) error { return nil },
		Close:        func(context.Context) error { return nil },
	}
}

type interviewRepo struct{ s *Store }

func (r interviewRepo) Create(_ context.Context, iv domain.Interview) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if iv.ID == "" {
		iv.ID = domain.NewID()
	}
	if _, ok := r.s.interviews[iv.ID]; ok {
		return "", fmt.Errorf("%w: interview %s exists", domain.ErrConflict, iv.ID)
	}
	r.s.interviews[iv.ID] = cloneInterview(iv)
	return iv.ID, nil
}

func (r interviewRepo) Get(_ context.Context, id string) (domain.Interview, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	iv, ok := r.s.interviews[id]
	if !ok {
		return domain.Interview{}, domain.ErrNotFound
	}
	return cloneInterview(iv), nil
}

func (r interviewRepo) Update(_ context.Context, iv domain.Interview) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.interviews[iv.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.interviews[iv.ID] = cloneInterview(iv)
	return nil
}

func (r interviewRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.interviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.interviews, id)
	return nil
}

func (r interviewRepo) ListByOwner(_ context.Context, ownerID string, f domain.InterviewFilter) ([]domain.Interview, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Interview
	for _, iv := range r.s.interviews {
		if iv.Owner.ID != ownerID || excluded(iv.Status, f.ExcludeStatus) {
			continue
		}
		out = append(out, cloneInterview(iv))
	}
	sortNewest(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r interviewRepo) ListAll(_ context.Context) ([]domain.Interview, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Interview, 0, len(r.s.interviews))
	for _, iv := range r.s.interviews {
		out = append(out, cloneInterview(iv))
	}
	sortNewest(out)
	return out, nil
}

func excluded(s domain.InterviewStatus, list []domain.InterviewStatus) bool {
	for _, x := range list {
		if s == x {
			return true
		}
	}
	return false
}

func sortNewest(ivs []domain.Interview) {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].CreatedAt.Equal(ivs[j].CreatedAt) {
			return ivs[i].CreatedAt.After(ivs[j].CreatedAt)
		}
		return ivs[i].ID > ivs[j].ID
	})
}

type questionSetRepo struct{ s *Store }

func (r questionSetRepo) Get(_ context.Context, interviewID string) (domain.QuestionSet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	qs, ok := r.s.questionSets[interviewID]
	if !ok {
		return domain.QuestionSet{}, domain.ErrNotFound
	}
	return cloneQuestionSet(qs), nil
}

func (r questionSetRepo) Replace(_ context.Context, qs domain.QuestionSet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if qs.ID == "" {
		qs.ID = uuid.NewString()
	}
	r.s.questionSets[qs.InterviewID] = cloneQuestionSet(qs)
	return nil
}

func (r questionSetRepo) Delete(_ context.Context, interviewID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.questionSets, interviewID)
	return nil
}

type answerRepo struct{ s *Store }

func (r answerRepo) Upsert(_ context.Context, interviewID string, answers []domain.Answer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.answers[interviewID]
	if !ok {
		m = map[int]domain.Answer{}
		r.s.answers[interviewID] = m
	}
	for _, a := range answers {
		a.InterviewID = interviewID
		m[a.QuestionIndex] = a
	}
	return nil
}

func (r answerRepo) List(_ context.Context, interviewID string) ([]domain.Answer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m := r.s.answers[interviewID]
	out := make([]domain.Answer, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out, nil
}

func (r answerRepo) DeleteAll(_ context.Context, interviewID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.answers, interviewID)
	return nil
}

type performanceRepo struct{ s *Store }

func (r performanceRepo) Upsert(_ context.Context, rec domain.PerformanceRecord) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if prev, ok := r.s.performances[rec.InterviewID]; ok {
		rec.ID = prev.ID
	} else if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.s.performances[rec.InterviewID] = cloneRecord(rec)
	return rec.ID, nil
}

func (r performanceRepo) GetByInterview(_ context.Context, interviewID string) (domain.PerformanceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.performances[interviewID]
	if !ok {
		return domain.PerformanceRecord{}, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r performanceRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.PerformanceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.PerformanceRecord
	for _, rec := range r.s.performances {
		if rec.Owner.ID == ownerID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r performanceRepo) Delete(_ context.Context, interviewID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.performances, interviewID)
	return nil
}

func cloneInterview(iv domain.Interview) domain.Interview {
	iv.Skills = append([]string(nil), iv.Skills...)
	iv.ProjectContext = append([]string(nil), iv.ProjectContext...)
	iv.WorkExDetails = append([]string(nil), iv.WorkExDetails...)
	if iv.CompletedAt != nil {
		t := *iv.CompletedAt
		iv.CompletedAt = &t
	}
	return iv
}

func cloneQuestionSet(qs domain.QuestionSet) domain.QuestionSet {
	questions := make([]domain.Question, len(qs.Questions))
	for i, q := range qs.Questions {
		q.EvaluationCriteria = append([]string(nil), q.EvaluationCriteria...)
		questions[i] = q
	}
	qs.Questions = questions
	if qs.Providers != nil {
		p := make(map[string]int, len(qs.Providers))
		for k, v := range qs.Providers {
			p[k] = v
		}
		qs.Providers = p
	}
	return qs
}

func cloneRecord(rec domain.PerformanceRecord) domain.PerformanceRecord {
	rec.QuestionScores = append([]domain.QuestionScore(nil), rec.QuestionScores...)
	rec.RoundResults = append([]domain.RoundResult(nil), rec.RoundResults...)
	rec.Feedback.Strengths = append([]string(nil), rec.Feedback.Strengths...)
	rec.Feedback.Improvements = append([]string(nil), rec.Feedback.Improvements...)
	rec.Feedback.Recommendations = append([]string(nil), rec.Feedback.Recommendations...)
	if rec.ParameterScores != nil {
		p := make(map[string]float64, len(rec.ParameterScores))
		for k, v := range rec.ParameterScores {
			p[k] = v
		}
		rec.ParameterScores = p
	}
	return rec
}
