package token

import (
	"context"
	"errors"
	"time"
)

// ErrDenylistUnavailable wraps denylist backend failures.
var ErrDenylistUnavailable = errors.New("token denylist unavailable")

// Denylist records revoked token ids until the tokens would have expired.
type Denylist interface {
	Deny(ctx context.Context, jti string, until time.Time) error
	Denied(ctx context.Context, jti string) (bool, error)
}
