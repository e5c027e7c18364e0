package lock

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// Waiting queues callers on a held key with exponential backoff for up to
// MaxElapsed before reporting the conflict. Other errors are not retried.
type Waiting struct {
	Locker          domain.Locker
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// WaitAcquire wraps l so callers wait up to maxElapsed. A zero maxElapsed
// returns l unchanged.
func WaitAcquire(l domain.Locker, maxElapsed, initial, maxInterval time.Duration) domain.Locker {
	if maxElapsed <= 0 {
		return l
	}
	return &Waiting{Locker: l, MaxElapsed: maxElapsed, InitialInterval: initial, MaxInterval: maxInterval}
}

// Acquire implements domain.Locker.
func (w *Waiting) Acquire(ctx context.Context, key string) (func(), error) {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = w.MaxElapsed
	if w.InitialInterval > 0 {
		expo.InitialInterval = w.InitialInterval
	}
	if w.MaxInterval > 0 {
		expo.MaxInterval = w.MaxInterval
	}

	var release func()
	op := func() error {
		r, err := w.Locker.Acquire(ctx, key)
		if err == nil {
			release = r
			return nil
		}
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return nil, err
	}
	return release, nil
}
