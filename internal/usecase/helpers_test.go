package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/heuristic"
	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/memory"
	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/service/lock"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

// fakeProvider returns canned questions or an error, optionally after a delay
// that honours ctx.
type fakeProvider struct {
	name  string
	out   func(req domain.GenerationRequest) []domain.Question
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.out == nil {
		return nil, nil
	}
	return f.out(req), nil
}

// fullSet answers every quota of req with tagged prompts.
func fullSet(tag string) func(domain.GenerationRequest) []domain.Question {
	return func(req domain.GenerationRequest) []domain.Question {
		var out []domain.Question
		for _, q := range req.Quotas {
			for i := 0; i < q.Count; i++ {
				out = append(out, domain.Question{
					Category: q.Category,
					Prompt:   fmt.Sprintf("%s %s question %d", tag, q.Category, i+1),
				})
			}
		}
		return out
	}
}

// countOf answers only n questions of category c.
func countOf(c domain.Category, n int) func(domain.GenerationRequest) []domain.Question {
	return func(domain.GenerationRequest) []domain.Question {
		out := make([]domain.Question, n)
		for i := range out {
			out[i] = domain.Question{Category: c, Prompt: fmt.Sprintf("partial %s %d", c, i+1)}
		}
		return out
	}
}

type reasonErr string

func (e reasonErr) Error() string  { return "provider: " + string(e) }
func (e reasonErr) Reason() string { return string(e) }

// spyRecorder captures counters for assertions.
type spyRecorder struct {
	mu        sync.Mutex
	fallbacks map[string]int
	sets      map[string]int
	scored    []float64
	repaired  map[string]int
	conflicts map[string]int
}

func newSpyRecorder() *spyRecorder {
	return &spyRecorder{fallbacks: map[string]int{}, sets: map[string]int{}, repaired: map[string]int{}, conflicts: map[string]int{}}
}

func (s *spyRecorder) ProviderFallback(provider, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks[provider+"/"+reason]++
}

func (s *spyRecorder) QuestionSet(provenance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[provenance]++
}

func (s *spyRecorder) Scored(_ string, overall float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scored = append(s.scored, overall)
}

func (s *spyRecorder) Repaired(kind string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repaired[kind] += n
}

func (s *spyRecorder) LockConflict(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[scope]++
}

// spyPublisher records published events.
type spyPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *spyPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *spyPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newController(providers ...domain.QuestionProvider) usecase.FallbackController {
	return usecase.NewFallbackController(providers, heuristic.MustDefault(), nil,
		func(int) time.Duration { return time.Second }, nil)
}

// fixture bundles an in-memory store with the services under test.
type fixture struct {
	store  domain.Store
	locker *lock.Keyed
	events *spyPublisher
	rec    *spyRecorder
	gen    usecase.GenerationService
	now    time.Time
}

func newFixture(t *testing.T, providers ...domain.QuestionProvider) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New().Domain(),
		locker: lock.NewKeyed(),
		events: &spyPublisher{},
		rec:    newSpyRecorder(),
		now:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	fb := newController(providers...)
	fb.Recorder = f.rec
	f.gen = usecase.NewGenerationService(f.store, f.locker, fb, f.events, f.rec)
	f.gen.Now = f.clock
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) createInterview(t *testing.T, typ domain.InterviewType, mutate ...func(*domain.Interview)) string {
	t.Helper()
	iv := domain.Interview{
		Owner:           domain.OwnerRef{ID: "65f000000000000000000001", Form: domain.OwnerFormObject},
		JobTitle:        "Backend Engineer",
		JobDesc:         "Build APIs in Go",
		CompanyName:     "Acme",
		Skills:          []string{"Go", "PostgreSQL"},
		InterviewType:   typ,
		ExperienceLevel: domain.LevelMid,
		Status:          domain.StatusCreated,
		CreatedAt:       f.now.Add(-30 * time.Minute),
		UpdatedAt:       f.now.Add(-30 * time.Minute),
	}
	for _, m := range mutate {
		m(&iv)
	}
	id, err := f.store.Interviews.Create(context.Background(), iv)
	require.NoError(t, err)
	return id
}
