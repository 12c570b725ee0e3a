// Package directory defines the account and credential records consumed by
// the authentication core, and the store contracts that persist them.
package directory

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("directory record not found")
	// ErrDuplicate is returned when a unique attribute (email, phone) is taken.
	ErrDuplicate = errors.New("directory record already exists")
	// ErrUnavailable wraps directory backend failures.
	ErrUnavailable = errors.New("directory store unavailable")
	// ErrInvalid is returned for records missing required attributes.
	ErrInvalid = errors.New("invalid directory record")
)

// AccountStore persists accounts. Email and phone are unique across accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	FindAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
}

// CredentialStore persists credentials. Credentials are never deleted;
// GetCredential returns the most recently created credential for an account.
type CredentialStore interface {
	CreateCredential(ctx context.Context, credential Credential) error
	GetCredential(ctx context.Context, accountID string) (Credential, error)
	UpdateCredential(ctx context.Context, credential Credential) error
}

// Store is the full directory backend.
type Store interface {
	AccountStore
	CredentialStore

	// Register stores a new account together with its first credential.
	// Either both records are written or neither is.
	Register(ctx context.Context, account Account, credential Credential) error
}

// NormalizeEmail trims and lowercases an email identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
