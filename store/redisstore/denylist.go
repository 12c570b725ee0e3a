package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/token"
)

// Denylist is a token.Denylist on Redis. Entries expire with the token.
type Denylist struct {
	redis  redis.UniversalClient
	prefix string
	clock  clock.Clock
}

func NewDenylist(client redis.UniversalClient, opts Options) *Denylist {
	return &Denylist{redis: client, prefix: opts.prefix(), clock: clock.Or(opts.Clock)}
}

func (d *Denylist) key(jti string) string {
	return d.prefix + ":deny:" + jti
}

func (d *Denylist) Deny(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := d.redis.Set(ctx, d.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", token.ErrDenylistUnavailable, err)
	}
	return nil
}

func (d *Denylist) Denied(ctx context.Context, jti string) (bool, error) {
	n, err := d.redis.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", token.ErrDenylistUnavailable, err)
	}
	return n > 0, nil
}
