package authcore

import (
	"errors"

	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/token"
)

var (
	// ErrInvalidCredentials is returned for an unknown identifier or a wrong
	// secret. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked matches every *LockedError.
	ErrAccountLocked = lockout.ErrLocked
	// ErrPasswordExpired is returned by Login when the secret is past its
	// validity window. The caller must change it before logging in.
	ErrPasswordExpired = errors.New("password expired")
	// ErrAccountDisabled is returned by Login for a deactivated account whose
	// secret was correct.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidToken covers every rejected access or refresh token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongCurrentPassword is returned by ChangePassword.
	ErrWrongCurrentPassword = errors.New("current password is incorrect")
	// ErrPasswordReuse is returned when the new secret equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrPasswordPolicy is returned for secrets outside the length rules.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidAccount is returned for registration or update input that
	// does not form a valid account.
	ErrInvalidAccount = errors.New("invalid account data")
	// ErrNotFound is returned when the addressed account does not exist.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned when email or phone is already registered.
	ErrDuplicate = errors.New("account already exists")
	// ErrInternal reports an infrastructure failure. Details are logged,
	// never returned.
	ErrInternal = errors.New("internal error")
	// ErrRevocationUnsupported is returned by RevokeAccessToken when the
	// Engine was built without a denylist.
	ErrRevocationUnsupported = token.ErrRevocationUnsupported
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError carries the instant a lock ends. A zero Until means the lock
// state could not be read in time and the attempt was refused anyway.
type LockedError = lockout.LockedError

// Outcome is the coarse class of an Engine result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomePolicyRejection
	OutcomeInternal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomePolicyRejection:
		return "policy_rejection"
	default:
		return "internal"
	}
}

var policyErrors = []error{
	ErrInvalidCredentials,
	ErrAccountLocked,
	ErrPasswordExpired,
	ErrAccountDisabled,
	ErrInvalidToken,
	ErrWrongCurrentPassword,
	ErrPasswordReuse,
	ErrPasswordPolicy,
	ErrInvalidAccount,
	ErrDuplicate,
}

// Classify maps an Engine error to its Outcome. Unknown errors are internal.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, ErrNotFound) {
		return OutcomeNotFound
	}
	for _, target := range policyErrors {
		if errors.Is(err, target) {
			return OutcomePolicyRejection
		}
	}
	return OutcomeInternal
}
