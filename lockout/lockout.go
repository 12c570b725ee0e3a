// Package lockout implements the per-account brute-force lockout policy.
//
// Every account owns an access-control state: a bounded counter of
// consecutive failed logins and an optional lock expiry. Reaching the
// threshold locks the account for a fixed duration; the counter stays at the
// threshold until a successful login resets it, so a single failure after the
// lock elapses locks the account again.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLocked matches every *LockedError.
	ErrLocked = errors.New("account locked")
	// ErrUnavailable wraps access-control backend failures.
	ErrUnavailable = errors.New("lockout backend unavailable")
)

// LockedError reports an active lock. Until is zero when the lock state could
// not be read in time and the check failed closed.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	if e.Until.IsZero() {
		return ErrLocked.Error()
	}
	return fmt.Sprintf("%s until %s", ErrLocked, e.Until.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrLocked) hold for any *LockedError.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// State is the access-control record of one account. The zero value (no
// failures, no lock) is the state of an account that has never failed.
type State struct {
	AccountID   string     `db:"account_id" json:"account_id"`
	Failures    int        `db:"failures" json:"failures"`
	LockedUntil *time.Time `db:"locked_until" json:"locked_until,omitempty"`
}

// LockedAt reports whether the state holds a lock that has not elapsed at now.
func (s State) LockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// Store persists access-control state.
//
// Get returns the zero state for unknown accounts. Increment atomically
// loads-or-creates the state, raises Failures by one capped at threshold and,
// once Failures reaches threshold, sets LockedUntil to lockUntil. It returns
// the stored state. Reset sets Failures to 0 and clears LockedUntil.
type Store interface {
	Get(ctx context.Context, accountID string) (State, error)
	Increment(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (State, error)
	Reset(ctx context.Context, accountID string) error
}
