package password

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
)

// DefaultValidityWindow is how long a secret stays valid after it was set.
const DefaultValidityWindow = 90 * 24 * time.Hour

var (
	// ErrExpired is returned when the current secret is older than the
	// validity window or its age cannot be established.
	ErrExpired = errors.New("password expired")
	// ErrCredentialInactive is returned when changing the secret of a
	// deactivated credential.
	ErrCredentialInactive = errors.New("credential inactive")
	// ErrUnavailable wraps backend failures seen by the enforcer.
	ErrUnavailable = errors.New("password policy backend unavailable")
)

// History is the subset of the audit recorder the enforcer needs.
type History interface {
	Latest(ctx context.Context, subjectID string, movements ...audit.Movement) (audit.Entry, error)
	RecordPasswordChange(ctx context.Context, s audit.Snapshot, actorID string) (audit.Entry, error)
}

// SessionRevoker ends every refresh session of an account.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, accountID string) (int, error)
}

// EnforcerConfig holds the password age policy.
type EnforcerConfig struct {
	ValidityWindow time.Duration
}

// Enforcer applies password age rules and performs secret changes.
type Enforcer struct {
	config      EnforcerConfig
	hasher      Hasher
	credentials directory.CredentialStore
	history     History
	sessions    SessionRevoker
	clock       clock.Clock
	logger      *zap.Logger

	// absent is a hash of a throwaway secret. Verifying against it gives
	// lookups without a credential the cost of a real comparison.
	absent string
}

const absentSecret = "no-such-credential-placeholder"

// NewEnforcer wires an Enforcer. All collaborators are required.
func NewEnforcer(
	cfg EnforcerConfig,
	hasher Hasher,
	credentials directory.CredentialStore,
	history History,
	sessions SessionRevoker,
	clk clock.Clock,
	logger *zap.Logger,
) (*Enforcer, error) {
	if cfg.ValidityWindow <= 0 {
		return nil, errors.New("password: validity window must be > 0")
	}
	if hasher == nil || credentials == nil || history == nil || sessions == nil {
		return nil, errors.New("password: enforcer requires hasher, credentials, history and sessions")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	absent, err := hasher.Hash(absentSecret)
	if err != nil {
		return nil, fmt.Errorf("password: hash placeholder: %w", err)
	}
	return &Enforcer{
		config:      cfg,
		hasher:      hasher,
		credentials: credentials,
		history:     history,
		sessions:    sessions,
		clock:       clock.Or(clk),
		logger:      logger.Named("password"),
		absent:      absent,
	}, nil
}

// EnsureNotExpired returns ErrExpired when the newest PASSWORD_CHANGE or
// CREATION entry of the account is older than the validity window, or when
// there is no such entry. Repeated calls at the same instant agree.
func (e *Enforcer) EnsureNotExpired(ctx context.Context, accountID string) error {
	entry, err := e.history.Latest(ctx, accountID, audit.MovementPasswordChange, audit.MovementCreation)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			e.logger.Warn("no password history, treating as expired", zap.String("account_id", accountID))
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if e.clock.Now().After(entry.CreatedAt.Add(e.config.ValidityWindow)) {
		return ErrExpired
	}
	return nil
}

// ChangePassword hashes next, stores it on the account's credential, records
// a PASSWORD_CHANGE entry attributed to actorID and revokes every refresh
// token of the account.
func (e *Enforcer) ChangePassword(ctx context.Context, accountID, next, actorID string) error {
	hash, err := e.hasher.Hash(next)
	if err != nil {
		if errors.Is(err, ErrPolicy) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	cred, err := e.credentials.GetCredential(ctx, accountID)
	if err != nil {
		return err
	}
	if !cred.Active {
		return ErrCredentialInactive
	}

	cred.PasswordHash = hash
	cred.UpdatedAt = e.clock.Now().UTC()
	if err := e.credentials.UpdateCredential(ctx, cred); err != nil {
		return err
	}

	if _, err := e.history.RecordPasswordChange(ctx, cred, actorID); err != nil {
		return err
	}

	n, err := e.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return err
	}
	e.logger.Info("password changed",
		zap.String("account_id", accountID),
		zap.String("actor_id", actorID),
		zap.Int("revoked_sessions", n),
	)
	return nil
}

// Verify checks secret against the stored hash. A malformed hash verifies as
// false and is logged.
func (e *Enforcer) Verify(cred directory.Credential, secret string) bool {
	ok, err := e.hasher.Verify(secret, cred.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unreadable",
			zap.String("account_id", cred.AccountID),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// VerifyAbsent runs a full comparison of secret against a placeholder hash
// and always reports false. Callers use it when no credential was found so
// the response time does not reveal whether the identifier exists.
func (e *Enforcer) VerifyAbsent(secret string) bool {
	_, _ = e.hasher.Verify(secret, e.absent)
	return false
}

// Hash exposes the configured hasher for new credentials.
func (e *Enforcer) Hash(secret string) (string, error) {
	return e.hasher.Hash(secret)
}
