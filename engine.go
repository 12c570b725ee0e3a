package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/internal/events"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

// Engine exposes the authentication operations. It is safe for concurrent
// use once built and holds no lock across store calls.
type Engine struct {
	config    Config
	clock     clock.Clock
	logger    *zap.Logger
	directory directory.Store
	lockout   *lockout.Manager
	tokens    *token.Manager
	refresh   *refresh.Manager
	history   *audit.Recorder
	passwords *password.Enforcer
	events    *events.Dispatcher
	metrics   *Metrics
}

// Close flushes pending security events. The stores are owned by the caller
// and are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.events.Close()
}

// EventsDropped reports security events discarded under backpressure.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.events.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration without key material.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	cfg := cloneConfig(e.config)
	cfg.Token.SigningKey = nil
	cfg.Token.VerifyKey = nil
	return cfg
}

func (e *Engine) onInvariantViolation() {
	e.metrics.Inc(MetricInvariantViolation)
	e.emit(context.Background(), EventInvariantViolation, "", false, refresh.ErrInvariantViolation, nil)
}

// bound applies the store timeout to directory and history calls made
// directly by the Engine.
func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Store.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// internalError logs err and replaces it with ErrInternal.
func (e *Engine) internalError(op, accountID string, err error) error {
	e.metrics.Inc(MetricInternalError)
	e.logger.Error("operation failed",
		zap.String("op", op),
		zap.String("account_id", accountID),
		zap.Error(err),
	)
	return ErrInternal
}

func (e *Engine) getAccount(ctx context.Context, op, accountID string) (directory.Account, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	account, err := e.directory.GetAccount(ctx, accountID)
	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, directory.ErrNotFound):
		return directory.Account{}, ErrNotFound
	default:
		return directory.Account{}, e.internalError(op, accountID, err)
	}
}

func (e *Engine) getCredential(ctx context.Context, op, accountID string) (directory.Credential, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	cred, err := e.directory.GetCredential(ctx, accountID)
	switch {
	case err == nil:
		return cred, nil
	case errors.Is(err, directory.ErrNotFound):
		return directory.Credential{}, ErrNotFound
	default:
		return directory.Credential{}, e.internalError(op, accountID, err)
	}
}

func subjectOf(a directory.Account) token.Subject {
	return token.Subject{AccountID: a.ID, Email: a.Email, Role: string(a.Role)}
}
