// Package postgres implements every authcore store contract on PostgreSQL
// through sqlx. Both the pgx stdlib driver ("pgx", the default) and lib/pq
// ("postgres") are registered.
//
// The schema ships embedded; call Migrate before first use.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Config describes the connection pool.
type Config struct {
	Driver          string        `toml:"driver"`
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: empty DSN")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPgx
	}
	if driver != DriverPgx && driver != DriverPQ {
		return nil, fmt.Errorf("postgres: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// Stores bundles every PostgreSQL store over one pool.
type Stores struct {
	Directory     *Directory
	AccessControl *AccessControl
	RefreshTokens *RefreshTokens
	History       *History
	Denylist      *Denylist
}

// New builds every store over db. clk drives denylist expiry checks.
func New(db *sqlx.DB, clk clock.Clock) *Stores {
	return &Stores{
		Directory:     NewDirectory(db),
		AccessControl: NewAccessControl(db),
		RefreshTokens: NewRefreshTokens(db),
		History:       NewHistory(db),
		Denylist:      NewDenylist(db, clk),
	}
}

var (
	_ directory.Store = (*Directory)(nil)
	_ lockout.Store   = (*AccessControl)(nil)
	_ refresh.Store   = (*RefreshTokens)(nil)
	_ audit.Store     = (*History)(nil)
	_ token.Denylist  = (*Denylist)(nil)
)

func isUniqueViolation(err error) bool     { return sqlState(err) == uniqueViolation }
func isForeignKeyViolation(err error) bool { return sqlState(err) == foreignKeyViolation }

// sqlState extracts the SQLSTATE code from either driver's error type.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
