package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/authcore/refresh"
)

const refreshColumns = `token_hash, account_id, expires_at, rotation_count, created_at`

// RefreshTokens is a refresh.Store over the refresh_tokens table.
type RefreshTokens struct {
	db *sqlx.DB
}

func NewRefreshTokens(db *sqlx.DB) *RefreshTokens { return &RefreshTokens{db: db} }

type refreshRow struct {
	TokenHash     string       `db:"token_hash"`
	AccountID     string       `db:"account_id"`
	ExpiresAt     sql.NullTime `db:"expires_at"`
	RotationCount int          `db:"rotation_count"`
	CreatedAt     sql.NullTime `db:"created_at"`
}

func (r refreshRow) record() refresh.Record {
	return refresh.Record{
		TokenHash:     r.TokenHash,
		AccountID:     r.AccountID,
		ExpiresAt:     r.ExpiresAt.Time,
		RotationCount: r.RotationCount,
		CreatedAt:     r.CreatedAt.Time,
	}
}

func (s *RefreshTokens) Insert(ctx context.Context, r refresh.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		r.TokenHash, r.AccountID, r.ExpiresAt, r.RotationCount, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

func (s *RefreshTokens) Find(ctx context.Context, tokenHash string) (refresh.Record, error) {
	var row refreshRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return refresh.Record{}, refresh.ErrNotFound
	}
	if err != nil {
		return refresh.Record{}, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return row.record(), nil
}

// Rotate deletes the old row conditioned on its rotation count and inserts
// next in the same transaction. A concurrent rotation blocks on the row lock
// and then finds nothing to delete.
func (s *RefreshTokens) Rotate(ctx context.Context, oldHash string, expectedRotations int, next refresh.Record) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var deleted string
	err = tx.GetContext(ctx, &deleted,
		`DELETE FROM refresh_tokens WHERE token_hash = $1 AND rotation_count = $2 RETURNING token_hash`,
		oldHash, expectedRotations)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err = tx.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`, oldHash); err != nil {
			return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
		}
		if exists {
			err = refresh.ErrRotationConflict
		} else {
			err = refresh.ErrNotFound
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		next.TokenHash, next.AccountID, next.ExpiresAt, next.RotationCount, next.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

func (s *RefreshTokens) Delete(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

func (s *RefreshTokens) DeleteByAccount(ctx context.Context, accountID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return int(n), nil
}

// PurgeExpired removes records that expired before the database's now().
// Expired records are already unusable; this only reclaims space.
func (s *RefreshTokens) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
