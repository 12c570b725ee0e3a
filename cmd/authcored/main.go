// Command authcored serves the authcore HTTP API.
//
// Engine settings come from a TOML file (-config) overlaid with AUTHCORE_*
// environment variables. Process settings come from flags, each of which
// falls back to an AUTHCORED_* variable:
//
//	AUTHCORED_ADDR            listen address (default :8080)
//	AUTHCORED_POSTGRES_DSN    PostgreSQL DSN; empty keeps state in memory
//	AUTHCORED_POSTGRES_DRIVER pgx (default) or postgres
//	AUTHCORED_REDIS_ADDR      Redis for lockout, refresh tokens, denylist
//	                          and the shared /auth request budget
//	AUTHCORED_REDIS_PREFIX    key prefix (default authcore)
//	AUTHCORED_CORS_ORIGINS    comma separated browser origins
//	AUTHCORED_TRUSTED_PROXIES comma separated proxy addresses or CIDRs whose
//	                          forwarding headers name the client
//	AUTHCORED_ADMIN_EMAIL     bootstrap administrator, created when missing
//	AUTHCORED_ADMIN_PHONE
//	AUTHCORED_ADMIN_PASSWORD
//
// Logging is controlled by LOG_LEVEL, LOG_DEV, LOG_FILE and LOG_MAX_AGE.
// A .env file is loaded first when present.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/internal/httpapi"
	ratelimit "github.com/MrEthical07/authcore/internal/rate"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authcored:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	configPath := flag.String("config", "", "engine TOML configuration; empty uses defaults plus AUTHCORE_* variables")
	addr := flag.String("addr", "", "listen address (AUTHCORED_ADDR)")
	migrateDB := flag.Bool("migrate", true, "apply schema migrations on start when postgres is configured")
	authPerMinute := flag.Int("auth-per-minute", 300, "requests per client IP per minute on /auth routes when redis is shared")
	purgeEvery := flag.Duration("purge-interval", 10*time.Minute, "how often expired SQL rows are removed")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	logger, err := newLogger(logConfigFromEnv())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadEngineConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	stores, err := openBackends(ctx, backendConfig{
		Postgres: postgres.Config{
			Driver: os.Getenv("AUTHCORED_POSTGRES_DRIVER"),
			DSN:    os.Getenv("AUTHCORED_POSTGRES_DSN"),
		},
		Migrate:     *migrateDB,
		RedisAddr:   os.Getenv("AUTHCORED_REDIS_ADDR"),
		RedisPrefix: os.Getenv("AUTHCORED_REDIS_PREFIX"),
	}, clk, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	builder := stores.apply(authcore.New()).
		WithConfig(cfg).
		WithClock(clk).
		WithLogger(logger)
	if cfg.Events.Enabled {
		builder = builder.WithEventSink(authcore.NewLoggerSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()
	logger.Info("engine ready", zap.Any("security", engine.SecurityReport()))

	if err := bootstrapAdmin(ctx, engine, logger); err != nil {
		return err
	}

	metricsHandler, err := promexport.Handler(engine, promexport.NodeLabels(cfg.Audit.NodeID))
	if err != nil {
		return fmt.Errorf("metrics handler: %w", err)
	}

	apiCfg := httpapi.DefaultConfig()
	apiCfg.AllowedOrigins = splitList(os.Getenv("AUTHCORED_CORS_ORIGINS"))
	apiCfg.TrustedProxies = splitList(os.Getenv("AUTHCORED_TRUSTED_PROXIES"))
	apiCfg.Metrics = metricsHandler
	apiCfg.Ready = func(r *http.Request) error { return stores.ready(r.Context()) }
	if stores.redis != nil {
		shared, err := ratelimit.New(stores.redis, ratelimit.Config{
			Prefix: envOr("AUTHCORED_REDIS_PREFIX", ratelimit.DefaultPrefix),
			Limit:  *authPerMinute,
			Window: time.Minute,
		})
		if err != nil {
			return err
		}
		apiCfg.SharedLimiter = shared
	}

	listen := *addr
	if listen == "" {
		listen = envOr("AUTHCORED_ADDR", ":8080")
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           httpapi.New(engine, apiCfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go stores.runPurge(ctx, *purgeEvery)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	if dropped := engine.EventsDropped(); dropped > 0 {
		logger.Warn("security events dropped", zap.Uint64("count", dropped))
	}
	return nil
}

func loadEngineConfig(path string) (authcore.Config, error) {
	cfg, err := authcore.LoadConfig(path)
	if err != nil {
		return authcore.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return cfg, nil
}

// bootstrapAdmin creates the configured administrator unless it exists.
func bootstrapAdmin(ctx context.Context, engine *authcore.Engine, logger *zap.Logger) error {
	email := os.Getenv("AUTHCORED_ADMIN_EMAIL")
	if email == "" {
		return nil
	}
	acct, err := engine.RegisterAccount(ctx, authcore.NewAccount{
		FirstName: "Administrator",
		Email:     email,
		Phone:     os.Getenv("AUTHCORED_ADMIN_PHONE"),
		Role:      authcore.RoleAdmin,
		Password:  os.Getenv("AUTHCORED_ADMIN_PASSWORD"),
	}, "")
	switch {
	case errors.Is(err, authcore.ErrDuplicate):
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.Info("administrator created", zap.String("account_id", acct.ID))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
