package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/refresh"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusConflict int64 = 1
	rotateStatusRotated  int64 = 2
)

// minRecordTTL keeps just-expired records addressable long enough for the
// manager to report them as expired rather than missing.
const minRecordTTL = time.Second

// indexMaintenance drops index members whose record is gone and keeps the
// index alive at least as long as its newest record.
const indexMaintenance = `
local function prune(index, prefix)
  for _, h in ipairs(redis.call("SMEMBERS", index)) do
    if redis.call("EXISTS", prefix .. h) == 0 then
      redis.call("SREM", index, h)
    end
  end
end
local function extend(index, ttl)
  if redis.call("PTTL", index) < ttl then
    redis.call("PEXPIRE", index, ttl)
  end
end
`

const insertRefreshScript = indexMaintenance + `
redis.call("HSET", KEYS[1], "account", ARGV[2], "expires_at", ARGV[3], "rotations", ARGV[4], "created_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
prune(KEYS[2], ARGV[7])
redis.call("SADD", KEYS[2], ARGV[1])
extend(KEYS[2], tonumber(ARGV[6]))
return 1
`

const rotateRefreshScript = indexMaintenance + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local current = tonumber(redis.call("HGET", KEYS[1], "rotations") or "-1")
if current ~= tonumber(ARGV[1]) then
  return 1
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[3], ARGV[2])
redis.call("HSET", KEYS[2], "account", ARGV[4], "expires_at", ARGV[5], "rotations", ARGV[6], "created_at", ARGV[7])
redis.call("PEXPIRE", KEYS[2], ARGV[8])
prune(KEYS[3], ARGV[9])
redis.call("SADD", KEYS[3], ARGV[3])
extend(KEYS[3], tonumber(ARGV[8]))
return 2
`

const deleteRefreshScript = `
local account = redis.call("HGET", KEYS[1], "account")
if not account then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. account, ARGV[1])
return 1
`

const deleteAccountRefreshScript = `
local hashes = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, h in ipairs(hashes) do
  removed = removed + redis.call("DEL", ARGV[1] .. h)
end
redis.call("DEL", KEYS[1])
return removed
`

var (
	insertRefreshLua        = redis.NewScript(insertRefreshScript)
	rotateRefreshLua        = redis.NewScript(rotateRefreshScript)
	deleteRefreshLua        = redis.NewScript(deleteRefreshScript)
	deleteAccountRefreshLua = redis.NewScript(deleteAccountRefreshScript)
)

// RefreshTokens is a refresh.Store on Redis. Records expire from Redis on
// their own shortly after ExpiresAt.
type RefreshTokens struct {
	redis  redis.UniversalClient
	prefix string
	clock  clock.Clock
}

func NewRefreshTokens(client redis.UniversalClient, opts Options) *RefreshTokens {
	return &RefreshTokens{redis: client, prefix: opts.prefix(), clock: clock.Or(opts.Clock)}
}

func (s *RefreshTokens) tokenPrefix() string { return s.prefix + ":rt:" }
func (s *RefreshTokens) indexPrefix() string { return s.prefix + ":rta:" }

func (s *RefreshTokens) key(hash string) string {
	return s.tokenPrefix() + hash
}

func (s *RefreshTokens) indexKey(accountID string) string {
	return s.indexPrefix() + accountID
}

func (s *RefreshTokens) ttl(r refresh.Record) time.Duration {
	ttl := r.ExpiresAt.Sub(s.clock.Now())
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	return ttl
}

func (s *RefreshTokens) Insert(ctx context.Context, r refresh.Record) error {
	err := insertRefreshLua.Run(ctx, s.redis,
		[]string{s.key(r.TokenHash), s.indexKey(r.AccountID)},
		r.TokenHash,
		r.AccountID,
		r.ExpiresAt.UnixMilli(),
		r.RotationCount,
		r.CreatedAt.UnixMilli(),
		s.ttl(r).Milliseconds(),
		s.tokenPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

func (s *RefreshTokens) Find(ctx context.Context, tokenHash string) (refresh.Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return refresh.Record{}, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return refresh.Record{}, refresh.ErrNotFound
	}
	return decodeRecord(tokenHash, fields)
}

func (s *RefreshTokens) Rotate(ctx context.Context, oldHash string, expectedRotations int, next refresh.Record) error {
	status, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(oldHash), s.key(next.TokenHash), s.indexKey(next.AccountID)},
		expectedRotations,
		oldHash,
		next.TokenHash,
		next.AccountID,
		next.ExpiresAt.UnixMilli(),
		next.RotationCount,
		next.CreatedAt.UnixMilli(),
		s.ttl(next).Milliseconds(),
		s.tokenPrefix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return refresh.ErrNotFound
	case rotateStatusConflict:
		return refresh.ErrRotationConflict
	default:
		return fmt.Errorf("%w: unexpected rotate status %d", refresh.ErrUnavailable, status)
	}
}

func (s *RefreshTokens) Delete(ctx context.Context, tokenHash string) error {
	err := deleteRefreshLua.Run(ctx, s.redis,
		[]string{s.key(tokenHash)},
		tokenHash, s.indexPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

func (s *RefreshTokens) DeleteByAccount(ctx context.Context, accountID string) (int, error) {
	n, err := deleteAccountRefreshLua.Run(ctx, s.redis,
		[]string{s.indexKey(accountID)},
		s.tokenPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return int(n), nil
}

func decodeRecord(hash string, fields map[string]string) (refresh.Record, error) {
	expires, err1 := parseMillis(fields["expires_at"])
	created, err2 := parseMillis(fields["created_at"])
	rotations, err3 := strconv.Atoi(fields["rotations"])
	account := fields["account"]
	if err1 != nil || err2 != nil || err3 != nil || account == "" {
		return refresh.Record{}, fmt.Errorf("%w: corrupt refresh record", refresh.ErrUnavailable)
	}
	return refresh.Record{
		TokenHash:     hash,
		AccountID:     account,
		ExpiresAt:     expires,
		RotationCount: rotations,
		CreatedAt:     created,
	}, nil
}
