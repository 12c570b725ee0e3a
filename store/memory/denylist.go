package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/clock"
)

// Denylist is an in-memory token.Denylist. Expired entries are pruned on
// write.
type Denylist struct {
	mu    sync.Mutex
	clock clock.Clock
	until map[string]time.Time
}

func NewDenylist(clk clock.Clock) *Denylist {
	return &Denylist{clock: clock.Or(clk), until: make(map[string]time.Time)}
}

func (d *Denylist) Deny(ctx context.Context, jti string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	for k, t := range d.until {
		if !now.Before(t) {
			delete(d.until, k)
		}
	}
	if now.Before(until) {
		d.until[jti] = until
	}
	return nil
}

func (d *Denylist) Denied(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.until[jti]
	return ok && d.clock.Now().Before(t), nil
}
