package usecase

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// InterviewLockKey is the one lock key every mutation of an interview holds:
// generation, scoring, answer submission, completion, saved performance and
// deletion never interleave for the same id.
func InterviewLockKey(interviewID string) string { return "interview:" + interviewID }

// lockInterview acquires the interview lock for op. A nil locker is a no-op.
func lockInterview(ctx domain.Context, l domain.Locker, rec Recorder, interviewID, op string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	release, err := l.Acquire(ctx, InterviewLockKey(interviewID))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			recorderOrNop(rec).LockConflict(op)
			return nil, fmt.Errorf("%w: interview is busy, retry %s later", domain.ErrConflict, op)
		}
		return nil, fmt.Errorf("op=%s.lock: %w", op, err)
	}
	return release, nil
}
