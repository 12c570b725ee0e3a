package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/internal"
)

const (
	DefaultTTL          = 7 * 24 * time.Hour
	DefaultMaxRotations = 10
)

var (
	// ErrInvalidOrExpired is the single policy outcome for any token that
	// cannot be used: unknown, expired, rotation-exhausted or malformed.
	ErrInvalidOrExpired = errors.New("refresh token invalid or expired")
	// ErrInvariantViolation reports store state that contradicts the
	// rotation protocol. It is an internal failure, never a policy outcome.
	ErrInvariantViolation = errors.New("refresh token invariant violated")
)

// Config holds the refresh policy.
type Config struct {
	TTL          time.Duration
	MaxRotations int
	// Timeout bounds each store call. Zero leaves the caller's deadline alone.
	Timeout time.Duration
	// OnInvariantViolation, when set, is called once per detected violation.
	OnInvariantViolation func()
}

// Issued is a newly minted refresh token.
type Issued struct {
	Token         string
	AccountID     string
	ExpiresAt     time.Time
	RotationCount int
}

// Manager creates, validates, rotates and revokes refresh tokens.
type Manager struct {
	store   Store
	config  Config
	clock   clock.Clock
	entropy io.Reader
	logger  *zap.Logger
}

// NewManager validates cfg and returns a Manager. entropy must be safe for
// concurrent use; nil selects crypto/rand.
func NewManager(store Store, cfg Config, clk clock.Clock, entropy io.Reader, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("refresh: nil store")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("refresh: TTL must be > 0")
	}
	if cfg.MaxRotations <= 0 {
		return nil, errors.New("refresh: max rotations must be > 0")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("refresh: timeout must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		config:  cfg,
		clock:   clock.Or(clk),
		entropy: clock.EntropyOr(entropy),
		logger:  logger.Named("refresh"),
	}, nil
}

// Create mints a token for accountID with a zero rotation count.
func (m *Manager) Create(ctx context.Context, accountID string) (Issued, error) {
	if accountID == "" {
		return Issued{}, errors.New("refresh: empty account id")
	}
	token, record, err := m.mint(accountID, 0)
	if err != nil {
		return Issued{}, err
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	if err := m.store.Insert(ctx, record); err != nil {
		return Issued{}, wrap(err)
	}
	return issued(token, record), nil
}

// IsValid reports whether token is currently usable. Malformed input is
// rejected without touching the store; store failures count as invalid.
func (m *Manager) IsValid(ctx context.Context, token string) bool {
	_, err := m.lookup(ctx, token)
	return err == nil
}

// GetAccount returns the owner of a usable token.
func (m *Manager) GetAccount(ctx context.Context, token string) (string, error) {
	record, err := m.lookup(ctx, token)
	if err != nil {
		return "", err
	}
	return record.AccountID, nil
}

// Rotate consumes token and returns its successor. Concurrent rotations of
// the same token have exactly one winner; the rest get ErrInvalidOrExpired.
func (m *Manager) Rotate(ctx context.Context, token string) (Issued, error) {
	current, err := m.lookup(ctx, token)
	if err != nil {
		return Issued{}, err
	}

	next, record, err := m.mint(current.AccountID, current.RotationCount+1)
	if err != nil {
		return Issued{}, err
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	err = m.store.Rotate(ctx, current.TokenHash, current.RotationCount, record)
	switch {
	case err == nil:
		return issued(next, record), nil
	case errors.Is(err, ErrNotFound):
		return Issued{}, ErrInvalidOrExpired
	case errors.Is(err, ErrRotationConflict):
		m.logger.Error("refresh rotation count diverged from stored record",
			zap.String("account_id", current.AccountID),
			zap.Int("expected_rotations", current.RotationCount),
			zap.Stack("stack"),
		)
		if m.config.OnInvariantViolation != nil {
			m.config.OnInvariantViolation()
		}
		return Issued{}, ErrInvariantViolation
	default:
		return Issued{}, wrap(err)
	}
}

// Revoke deletes token. Unknown or malformed tokens are not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	raw, err := internal.DecodeOpaqueToken(token)
	if err != nil {
		return nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	if err := m.store.Delete(ctx, internal.HashToken(raw)); err != nil && !errors.Is(err, ErrNotFound) {
		return wrap(err)
	}
	return nil
}

// RevokeAll deletes every token owned by accountID.
func (m *Manager) RevokeAll(ctx context.Context, accountID string) (int, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()

	n, err := m.store.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (m *Manager) lookup(ctx context.Context, token string) (Record, error) {
	raw, err := internal.DecodeOpaqueToken(token)
	if err != nil {
		return Record{}, ErrInvalidOrExpired
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	record, err := m.store.Find(ctx, internal.HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrInvalidOrExpired
		}
		return Record{}, wrap(err)
	}
	if !record.UsableAt(m.clock.Now(), m.config.MaxRotations) {
		return Record{}, ErrInvalidOrExpired
	}
	return record, nil
}

func (m *Manager) mint(accountID string, rotations int) (string, Record, error) {
	token, raw, err := internal.NewOpaqueToken(m.entropy)
	if err != nil {
		return "", Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	now := m.clock.Now().UTC()
	return token, Record{
		TokenHash:     internal.HashToken(raw),
		AccountID:     accountID,
		ExpiresAt:     now.Add(m.config.TTL),
		RotationCount: rotations,
		CreatedAt:     now,
	}, nil
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.Timeout)
}

func issued(token string, r Record) Issued {
	return Issued{
		Token:         token,
		AccountID:     r.AccountID,
		ExpiresAt:     r.ExpiresAt,
		RotationCount: r.RotationCount,
	}
}

func wrap(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
