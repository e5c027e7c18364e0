// Package cached fronts a QuestionSetRepository with an in-process LRU.
package cached

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// QuestionSets caches question sets by interview id. Writes go through to the
// backing repository and invalidate the entry. Concurrent misses for one
// interview share a single backing read.
//
// Each write bumps a per-interview generation before and after it reaches the
// backing store; a load only populates the cache when no write overlapped it.
// Invalidation is process-local, so only use it with a single replica.
type QuestionSets struct {
	next  domain.QuestionSetRepository
	cache *lru.Cache[string, domain.QuestionSet]
	loads singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64
}

// NewQuestionSets wraps next with a cache of size entries.
func NewQuestionSets(next domain.QuestionSetRepository, size int) (*QuestionSets, error) {
	if next == nil {
		return nil, errors.New("cached: nil question set repository")
	}
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, domain.QuestionSet](size)
	if err != nil {
		return nil, err
	}
	return &QuestionSets{next: next, cache: c, gens: make(map[string]uint64)}, nil
}

// Get serves from cache, loading on miss. Misses on absent sets are not cached.
func (q *QuestionSets) Get(ctx domain.Context, interviewID string) (domain.QuestionSet, error) {
	if qs, ok := q.cache.Get(interviewID); ok {
		return clone(qs), nil
	}
	v, err, _ := q.loads.Do(interviewID, func() (any, error) {
		gen := q.generation(interviewID)
		qs, err := q.next.Get(ctx, interviewID)
		if err != nil {
			return nil, err
		}
		q.mu.Lock()
		if q.gens[interviewID] == gen {
			q.cache.Add(interviewID, clone(qs))
		}
		q.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return clone(v.(domain.QuestionSet)), nil
}

// Replace writes through and drops the entry; the next Get reloads it.
func (q *QuestionSets) Replace(ctx domain.Context, qs domain.QuestionSet) error {
	q.invalidate(qs.InterviewID)
	defer q.invalidate(qs.InterviewID)
	return q.next.Replace(ctx, qs)
}

// Delete removes the set and its entry.
func (q *QuestionSets) Delete(ctx domain.Context, interviewID string) error {
	q.invalidate(interviewID)
	defer q.invalidate(interviewID)
	return q.next.Delete(ctx, interviewID)
}

func (q *QuestionSets) generation(interviewID string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gens[interviewID]
}

// invalidate bumps the generation, drops the entry and detaches any in-flight
// load so later readers start a fresh one.
func (q *QuestionSets) invalidate(interviewID string) {
	q.mu.Lock()
	q.gens[interviewID]++
	q.cache.Remove(interviewID)
	q.mu.Unlock()
	q.loads.Forget(interviewID)
}

// Len returns the number of cached sets.
func (q *QuestionSets) Len() int { return q.cache.Len() }

// Wrap replaces st.QuestionSets with a cached view.
func Wrap(st domain.Store, size int) (domain.Store, error) {
	c, err := NewQuestionSets(st.QuestionSets, size)
	if err != nil {
		return st, err
	}
	st.QuestionSets = c
	return st, nil
}

func clone(qs domain.QuestionSet) domain.QuestionSet {
	qs.Questions = append([]domain.Question(nil), qs.Questions...)
	if qs.Providers != nil {
		m := make(map[string]int, len(qs.Providers))
		for k, v := range qs.Providers {
			m[k] = v
		}
		qs.Providers = m
	}
	return qs
}
