package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/token"
)

// Denylist is a token.Denylist over the token_denylist table. Expired rows
// are ignored on read and removed by PurgeExpired.
type Denylist struct {
	db    *sqlx.DB
	clock clock.Clock
}

func NewDenylist(db *sqlx.DB, clk clock.Clock) *Denylist {
	return &Denylist{db: db, clock: clock.Or(clk)}
}

func (d *Denylist) Deny(ctx context.Context, jti string, until time.Time) error {
	if !d.clock.Now().Before(until) {
		return nil
	}
	q := `INSERT INTO token_denylist (jti, expires_at) VALUES ($1, $2)
		  ON CONFLICT (jti) DO UPDATE SET expires_at = GREATEST(token_denylist.expires_at, EXCLUDED.expires_at)`
	if _, err := d.db.ExecContext(ctx, q, jti, until); err != nil {
		return fmt.Errorf("%w: %v", token.ErrDenylistUnavailable, err)
	}
	return nil
}

func (d *Denylist) Denied(ctx context.Context, jti string) (bool, error) {
	var denied bool
	err := d.db.GetContext(ctx, &denied,
		`SELECT EXISTS (SELECT 1 FROM token_denylist WHERE jti = $1 AND expires_at > $2)`, jti, d.clock.Now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", token.ErrDenylistUnavailable, err)
	}
	return denied, nil
}

// PurgeExpired deletes entries whose token has expired.
func (d *Denylist) PurgeExpired(ctx context.Context) (int, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM token_denylist WHERE expires_at <= $1`, d.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", token.ErrDenylistUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
