package login

import (
	"fmt"
	"math"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jonboulle/clockwork"
)

// Policy is the client-side lockout policy for password sign-in.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Lockout: 15 * time.Minute}
}

// LockedOutError is returned while the tracker is locked.
type LockedOutError struct {
	Until     time.Time
	Remaining time.Duration
}

// MinutesRemaining rounds the remaining lockout up to whole minutes.
func (e *LockedOutError) MinutesRemaining() int {
	return int(math.Ceil(e.Remaining.Minutes()))
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed login attempts, please try again in %d minutes", e.MinutesRemaining())
}

func (e *LockedOutError) Is(target error) bool {
	return target == apperrors.ErrLockedOut
}

// AttemptTracker counts consecutive failed sign-ins. The counter resets on success or
// once the lockout has elapsed.
type AttemptTracker struct {
	policy Policy
	clock  clockwork.Clock

	lock        sync.Mutex
	failures    int
	lockedUntil time.Time
}

type TrackerOption func(*AttemptTracker)

func WithClock(clock clockwork.Clock) TrackerOption {
	return func(t *AttemptTracker) {
		t.clock = clock
	}
}

func NewAttemptTracker(policy Policy, options ...TrackerOption) *AttemptTracker {
	if policy.MaxAttempts <= 0 || policy.Lockout <= 0 {
		policy = DefaultPolicy()
	}
	t := &AttemptTracker{
		policy: policy,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Check returns a *LockedOutError while locked.
func (t *AttemptTracker) Check() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.checkLocked()
}

// RecordFailure counts a rejected sign-in and returns the lockout error once the
// policy's limit is reached.
func (t *AttemptTracker) RecordFailure() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.checkLocked(); err != nil {
		return err
	}
	t.failures++
	if t.failures >= t.policy.MaxAttempts {
		t.lockedUntil = t.clock.Now().Add(t.policy.Lockout)
		return t.checkLocked()
	}
	return nil
}

func (t *AttemptTracker) RecordSuccess() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.reset()
}

// Failures returns the current consecutive failure count.
func (t *AttemptTracker) Failures() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	_ = t.checkLocked()
	return t.failures
}

// Remaining returns how many attempts are left before lockout.
func (t *AttemptTracker) Remaining() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.checkLocked() != nil {
		return 0
	}
	return t.policy.MaxAttempts - t.failures
}

func (t *AttemptTracker) checkLocked() error {
	if t.lockedUntil.IsZero() {
		return nil
	}
	now := t.clock.Now()
	if !now.Before(t.lockedUntil) {
		t.reset()
		return nil
	}
	return &LockedOutError{Until: t.lockedUntil, Remaining: t.lockedUntil.Sub(now)}
}

func (t *AttemptTracker) reset() {
	t.failures = 0
	t.lockedUntil = time.Time{}
}
