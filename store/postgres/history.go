package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/authcore/audit"
)

const auditColumns = `id, seq, subject_id, entity, entity_id, movement, actor_id, changes, created_at`

// History is an append-only audit.Store over the audit_entries table.
type History struct {
	db *sqlx.DB
}

func NewHistory(db *sqlx.DB) *History { return &History{db: db} }

func (h *History) Append(ctx context.Context, e audit.Entry) error {
	if !e.Movement.Valid() {
		return fmt.Errorf("%w: unknown movement %q", audit.ErrInvalidSnapshot, e.Movement)
	}
	q := `INSERT INTO audit_entries (` + auditColumns + `)
		  VALUES (:id, :seq, :subject_id, :entity, :entity_id, :movement, :actor_id, :changes, :created_at)`
	if _, err := h.db.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("%w: %v", audit.ErrUnavailable, err)
	}
	return nil
}

func (h *History) Latest(ctx context.Context, subjectID string, movements ...audit.Movement) (audit.Entry, error) {
	q := `SELECT ` + auditColumns + ` FROM audit_entries WHERE subject_id = ?`
	args := []any{subjectID}
	if len(movements) > 0 {
		q += ` AND movement IN (?)`
		args = append(args, movements)
	}
	q += ` ORDER BY created_at DESC, seq DESC LIMIT 1`

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("%w: %v", audit.ErrUnavailable, err)
	}

	var e audit.Entry
	err = h.db.GetContext(ctx, &e, h.db.Rebind(q), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Entry{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.Entry{}, fmt.Errorf("%w: %v", audit.ErrUnavailable, err)
	}
	return e, nil
}

func (h *History) List(ctx context.Context, subjectID string) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := h.db.SelectContext(ctx, &entries,
		`SELECT `+auditColumns+` FROM audit_entries WHERE subject_id = $1 ORDER BY created_at, seq`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audit.ErrUnavailable, err)
	}
	return entries, nil
}
