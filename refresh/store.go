package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("refresh token not found")
	// ErrRotationConflict is returned by Store.Rotate when the stored record
	// exists but its rotation count differs from the expected one.
	ErrRotationConflict = errors.New("refresh token rotation conflict")
	// ErrUnavailable wraps refresh backend failures.
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Record is the persisted form of a refresh token.
type Record struct {
	TokenHash     string    `db:"token_hash" json:"-"`
	AccountID     string    `db:"account_id" json:"account_id"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	RotationCount int       `db:"rotation_count" json:"rotation_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// UsableAt reports whether r may be used at now under maxRotations.
func (r Record) UsableAt(now time.Time, maxRotations int) bool {
	return now.Before(r.ExpiresAt) && r.RotationCount < maxRotations
}

// Store persists refresh records keyed by token hash.
//
// Rotate deletes the record for oldHash and inserts next as one atomic unit,
// provided the stored record still has expectedRotations. It returns
// ErrNotFound when oldHash is gone and ErrRotationConflict when the count
// does not match; in both cases nothing is written.
//
// Delete is idempotent. DeleteByAccount returns how many records it removed.
type Store interface {
	Insert(ctx context.Context, record Record) error
	Find(ctx context.Context, tokenHash string) (Record, error)
	Rotate(ctx context.Context, oldHash string, expectedRotations int, next Record) error
	Delete(ctx context.Context, tokenHash string) error
	DeleteByAccount(ctx context.Context, accountID string) (int, error)
}
