package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/authcore/lockout"
)

// AccessControl is a lockout.Store over the access_control table. Rows are
// created on the first failure and never deleted.
type AccessControl struct {
	db *sqlx.DB
}

func NewAccessControl(db *sqlx.DB) *AccessControl { return &AccessControl{db: db} }

type accessControlRow struct {
	Failures    int          `db:"failures"`
	LockedUntil sql.NullTime `db:"locked_until"`
}

func (r accessControlRow) state(accountID string) lockout.State {
	st := lockout.State{AccountID: accountID, Failures: r.Failures}
	if r.LockedUntil.Valid {
		until := r.LockedUntil.Time
		st.LockedUntil = &until
	}
	return st
}

func (a *AccessControl) Get(ctx context.Context, accountID string) (lockout.State, error) {
	var row accessControlRow
	err := a.db.GetContext(ctx, &row,
		`SELECT failures, locked_until FROM access_control WHERE account_id = $1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return lockout.State{AccountID: accountID}, nil
	}
	if err != nil {
		return lockout.State{}, fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	return row.state(accountID), nil
}

// Increment is a single upsert so concurrent failures serialize on the row.
func (a *AccessControl) Increment(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (lockout.State, error) {
	if threshold <= 0 {
		return lockout.State{}, errors.New("postgres: threshold must be > 0")
	}
	q := `INSERT INTO access_control AS ac (account_id, failures, locked_until)
		  VALUES ($1, LEAST(1, $2::int), CASE WHEN 1 >= $2::int THEN $3::timestamptz END)
		  ON CONFLICT (account_id) DO UPDATE SET
		    failures = LEAST(ac.failures + 1, $2::int),
		    locked_until = CASE WHEN ac.failures + 1 >= $2::int THEN $3::timestamptz ELSE ac.locked_until END
		  RETURNING failures, locked_until`
	var row accessControlRow
	if err := a.db.GetContext(ctx, &row, q, accountID, threshold, lockUntil); err != nil {
		return lockout.State{}, fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	return row.state(accountID), nil
}

func (a *AccessControl) Reset(ctx context.Context, accountID string) error {
	q := `INSERT INTO access_control (account_id, failures, locked_until)
		  VALUES ($1, 0, NULL)
		  ON CONFLICT (account_id) DO UPDATE SET failures = 0, locked_until = NULL`
	if _, err := a.db.ExecContext(ctx, q, accountID); err != nil {
		return fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	return nil
}
