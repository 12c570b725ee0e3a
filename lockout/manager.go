package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/clock"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 15 * time.Minute
)

// Config holds the lockout policy.
type Config struct {
	Threshold int
	Duration  time.Duration
	// Timeout bounds each store call. Zero leaves the caller's deadline alone.
	Timeout time.Duration
}

// Manager applies the lockout policy on top of a Store.
type Manager struct {
	store  Store
	config Config
	clock  clock.Clock
	logger *zap.Logger
}

// NewManager validates cfg and returns a Manager.
func NewManager(store Store, cfg Config, clk clock.Clock, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("lockout: nil store")
	}
	if cfg.Threshold <= 0 {
		return nil, errors.New("lockout: threshold must be > 0")
	}
	if cfg.Duration <= 0 {
		return nil, errors.New("lockout: duration must be > 0")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("lockout: timeout must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		config: cfg,
		clock:  clock.Or(clk),
		logger: logger.Named("lockout"),
	}, nil
}

// CheckLockout returns nil when the account may attempt a login and a
// *LockedError while a lock is active. It has no side effects. A store call
// that runs out of time fails closed and reports the account as locked.
func (m *Manager) CheckLockout(ctx context.Context, accountID string) error {
	ctx, cancel := m.bound(ctx)
	defer cancel()

	state, err := m.store.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			m.logger.Warn("lockout check timed out, failing closed", zap.String("account_id", accountID))
			return &LockedError{}
		}
		return wrap(err)
	}

	if state.LockedAt(m.clock.Now()) {
		return &LockedError{Until: *state.LockedUntil}
	}
	return nil
}

// RecordFailure counts one failed login and locks the account when the
// threshold is reached. The returned state is the one persisted.
func (m *Manager) RecordFailure(ctx context.Context, accountID string) (State, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()

	now := m.clock.Now()
	state, err := m.store.Increment(ctx, accountID, m.config.Threshold, now.Add(m.config.Duration))
	if err != nil {
		return State{}, wrap(err)
	}
	if state.LockedAt(now) && state.Failures == m.config.Threshold {
		m.logger.Info("account locked",
			zap.String("account_id", accountID),
			zap.Time("locked_until", *state.LockedUntil),
		)
	}
	return state, nil
}

// ResetFailures clears the counter and any lock.
func (m *Manager) ResetFailures(ctx context.Context, accountID string) error {
	ctx, cancel := m.bound(ctx)
	defer cancel()

	if err := m.store.Reset(ctx, accountID); err != nil {
		return wrap(err)
	}
	return nil
}

// Status returns the stored state without applying the policy.
func (m *Manager) Status(ctx context.Context, accountID string) (State, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()

	state, err := m.store.Get(ctx, accountID)
	if err != nil {
		return State{}, wrap(err)
	}
	return state, nil
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.Timeout)
}

func wrap(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
