//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/redisstore"
)

const (
	email  = "alice@example.com"
	phone  = "+15550100"
	secret = "correct-horse-battery"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis. A real server is added when
// REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}
	return modes
}

type env struct {
	engine *authcore.Engine
	clock  clock.FakeClock
	redis  redis.UniversalClient
	stores *redisstore.Stores
}

// newEnv builds an engine whose lockout, refresh and denylist state lives in
// Redis. Accounts and history stay in memory.
func newEnv(t *testing.T, rdb redis.UniversalClient) *env {
	t.Helper()

	clk := clock.NewFake(time.Now().UTC().Truncate(time.Millisecond))
	mem := memory.New(clk)
	rs := redisstore.New(rdb, redisstore.Options{Prefix: "it", Clock: clk})

	cfg := authcore.DefaultConfig()
	cfg.Token.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Hasher = password.HasherConfig{Algorithm: password.AlgorithmBcrypt, BcryptCost: 4}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithDirectory(mem.Directory).
		WithHistoryStore(mem.History).
		WithAccessControlStore(rs.AccessControl).
		WithRefreshStore(rs.RefreshTokens).
		WithDenylist(rs.Denylist).
		WithClock(clk).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &env{engine: engine, clock: clk, redis: rdb, stores: rs}
}

func (e *env) register(t *testing.T) authcore.Account {
	t.Helper()
	acct, err := e.engine.RegisterAccount(context.Background(), authcore.NewAccount{
		FirstName: "Alice",
		Email:     email,
		Phone:     phone,
		Password:  secret,
	}, "")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	return acct
}
