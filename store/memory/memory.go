// Package memory provides in-process implementations of every authcore
// store contract. Each store guards its maps with its own mutex and never
// calls out while holding it. Suitable for tests, embedding and single
// process deployments.
package memory

import (
	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

// Store bundles one instance of every memory store.
type Store struct {
	Directory     *Directory
	AccessControl *AccessControl
	RefreshTokens *RefreshTokens
	History       *History
	Denylist      *Denylist
}

// New returns an empty Store. clk drives denylist expiry.
func New(clk clock.Clock) *Store {
	return &Store{
		Directory:     NewDirectory(),
		AccessControl: NewAccessControl(),
		RefreshTokens: NewRefreshTokens(),
		History:       NewHistory(),
		Denylist:      NewDenylist(clk),
	}
}

var (
	_ directory.Store = (*Directory)(nil)
	_ lockout.Store   = (*AccessControl)(nil)
	_ refresh.Store   = (*RefreshTokens)(nil)
	_ audit.Store     = (*History)(nil)
	_ token.Denylist  = (*Denylist)(nil)
)
