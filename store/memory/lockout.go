package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/lockout"
)

// AccessControl is an in-memory lockout.Store.
type AccessControl struct {
	mu     sync.Mutex
	states map[string]lockout.State
}

func NewAccessControl() *AccessControl {
	return &AccessControl{states: make(map[string]lockout.State)}
}

func (a *AccessControl) Get(ctx context.Context, accountID string) (lockout.State, error) {
	if err := ctx.Err(); err != nil {
		return lockout.State{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[accountID]
	if !ok {
		return lockout.State{AccountID: accountID}, nil
	}
	return copyState(st), nil
}

func (a *AccessControl) Increment(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (lockout.State, error) {
	if err := ctx.Err(); err != nil {
		return lockout.State{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.states[accountID]
	st.AccountID = accountID
	st.Failures++
	if st.Failures >= threshold {
		st.Failures = threshold
		until := lockUntil
		st.LockedUntil = &until
	}
	a.states[accountID] = st
	return copyState(st), nil
}

func (a *AccessControl) Reset(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.states[accountID] = lockout.State{AccountID: accountID}
	return nil
}

func copyState(st lockout.State) lockout.State {
	if st.LockedUntil != nil {
		t := *st.LockedUntil
		st.LockedUntil = &t
	}
	return st
}
