// Package lock provides the per-interview exclusive leases used to keep
// every operation on one interview single-flight.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// Keyed is an in-process try-lock per key. It only serializes callers within
// one process; use RedisLease when several replicas share a store.
type Keyed struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyed returns an empty keyed lock.
func NewKeyed() *Keyed {
	return &Keyed{held: make(map[string]struct{})}
}

// Acquire implements domain.Locker.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[key]; ok {
		return nil, fmt.Errorf("%w: %s is held", domain.ErrConflict, key)
	}
	k.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, key)
			k.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently held.
func (k *Keyed) Held(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.held[key]
	return ok
}
