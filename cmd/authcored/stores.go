package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/MrEthical07/authcore/token"
)

type backendConfig struct {
	Postgres    postgres.Config
	Migrate     bool
	RedisAddr   string
	RedisPrefix string
}

// backends holds the stores handed to the engine plus the connections that
// must be closed on shutdown.
type backends struct {
	directory directory.Store
	access    lockout.Store
	refresh   refresh.Store
	history   audit.Store
	denylist  token.Denylist

	db     *sqlx.DB
	redis  redis.UniversalClient
	purge  []purger
	logger *zap.Logger
}

type purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

func openBackends(ctx context.Context, cfg backendConfig, clk clock.Clock, logger *zap.Logger) (*backends, error) {
	b := &backends{logger: logger}

	if cfg.Postgres.DSN != "" {
		if cfg.Migrate {
			if err := postgres.Migrate(cfg.Postgres); err != nil {
				return nil, err
			}
			logger.Info("schema migrated")
		}
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		pg := postgres.New(db, clk)
		b.db = db
		b.directory = pg.Directory
		b.access = pg.AccessControl
		b.refresh = pg.RefreshTokens
		b.history = pg.History
		b.denylist = pg.Denylist
		b.purge = append(b.purge, pg.RefreshTokens, pg.Denylist)
		logger.Info("using postgres stores", zap.String("driver", driverName(cfg.Postgres)))
	} else {
		mem := memory.New(clk)
		b.directory = mem.Directory
		b.access = mem.AccessControl
		b.refresh = mem.RefreshTokens
		b.history = mem.History
		b.denylist = mem.Denylist
		logger.Warn("no postgres DSN configured; state is kept in memory and lost on exit")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			b.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rs := redisstore.New(client, redisstore.Options{Prefix: cfg.RedisPrefix, Clock: clk})
		b.redis = client
		b.access = rs.AccessControl
		b.refresh = rs.RefreshTokens
		b.denylist = rs.Denylist
		b.purge = nil
		logger.Info("using redis for lockout, refresh tokens and denylist", zap.String("addr", cfg.RedisAddr))
	}
	return b, nil
}

func driverName(cfg postgres.Config) string {
	if cfg.Driver == "" {
		return postgres.DriverPgx
	}
	return cfg.Driver
}

func (b *backends) apply(builder *authcore.Builder) *authcore.Builder {
	return builder.
		WithDirectory(b.directory).
		WithAccessControlStore(b.access).
		WithRefreshStore(b.refresh).
		WithHistoryStore(b.history).
		WithDenylist(b.denylist)
}

// ready reports whether every remote backend answers.
func (b *backends) ready(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// runPurge deletes expired SQL rows every interval until ctx ends. Redis
// expires its own keys.
func (b *backends) runPurge(ctx context.Context, interval time.Duration) {
	if len(b.purge) == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range b.purge {
				n, err := p.PurgeExpired(ctx)
				if err != nil {
					b.logger.Warn("purge expired rows", zap.Error(err))
					continue
				}
				if n > 0 {
					b.logger.Debug("purged expired rows", zap.Int("rows", n), zap.String("store", fmt.Sprintf("%T", p)))
				}
			}
		}
	}
}

func (b *backends) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			b.logger.Warn("close redis", zap.Error(err))
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			b.logger.Warn("close postgres", zap.Error(err))
		}
	}
}
