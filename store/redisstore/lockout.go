package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/lockout"
)

const incrementFailuresScript = `
local failures = redis.call("HINCRBY", KEYS[1], "failures", 1)
local threshold = tonumber(ARGV[1])
if failures >= threshold then
  failures = threshold
  redis.call("HSET", KEYS[1], "failures", threshold, "locked_until", ARGV[2])
end
local locked = redis.call("HGET", KEYS[1], "locked_until")
return {failures, locked or ""}
`

var incrementFailuresLua = redis.NewScript(incrementFailuresScript)

// AccessControl is a lockout.Store on Redis.
type AccessControl struct {
	redis  redis.UniversalClient
	prefix string
}

func NewAccessControl(client redis.UniversalClient, opts Options) *AccessControl {
	return &AccessControl{redis: client, prefix: opts.prefix()}
}

func (a *AccessControl) key(accountID string) string {
	return a.prefix + ":acl:" + accountID
}

func (a *AccessControl) Get(ctx context.Context, accountID string) (lockout.State, error) {
	vals, err := a.redis.HMGet(ctx, a.key(accountID), "failures", "locked_until").Result()
	if err != nil {
		return lockout.State{}, fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}

	st := lockout.State{AccountID: accountID}
	if s, ok := vals[0].(string); ok {
		if st.Failures, err = strconv.Atoi(s); err != nil {
			return lockout.State{}, fmt.Errorf("%w: corrupt failures field", lockout.ErrUnavailable)
		}
	}
	if s, ok := vals[1].(string); ok && s != "" {
		until, err := parseMillis(s)
		if err != nil {
			return lockout.State{}, fmt.Errorf("%w: corrupt locked_until field", lockout.ErrUnavailable)
		}
		st.LockedUntil = &until
	}
	return st, nil
}

func (a *AccessControl) Increment(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (lockout.State, error) {
	if threshold <= 0 {
		return lockout.State{}, errors.New("redisstore: threshold must be > 0")
	}

	res, err := incrementFailuresLua.Run(ctx, a.redis,
		[]string{a.key(accountID)},
		threshold, lockUntil.UnixMilli(),
	).Slice()
	if err != nil {
		return lockout.State{}, fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	if len(res) != 2 {
		return lockout.State{}, fmt.Errorf("%w: unexpected script reply", lockout.ErrUnavailable)
	}

	failures, _ := res[0].(int64)
	st := lockout.State{AccountID: accountID, Failures: int(failures)}
	if s, _ := res[1].(string); s != "" {
		until, err := parseMillis(s)
		if err != nil {
			return lockout.State{}, fmt.Errorf("%w: corrupt locked_until field", lockout.ErrUnavailable)
		}
		st.LockedUntil = &until
	}
	return st, nil
}

func (a *AccessControl) Reset(ctx context.Context, accountID string) error {
	key := a.key(accountID)
	_, err := a.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "failures", 0)
		pipe.HDel(ctx, key, "locked_until")
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	return nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
