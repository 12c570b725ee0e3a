// Package redisstore implements the access-control, refresh-token and
// access-token denylist stores on Redis.
//
// # Key layout
//
//	{prefix}:acl:{account}   HASH  failures, locked_until (unix ms)
//	{prefix}:rt:{hash}       HASH  account, expires_at, rotations, created_at
//	{prefix}:rta:{account}   SET   token hashes owned by the account, pruned on
//	                               write, expires with its newest record
//	{prefix}:deny:{jti}      STRING, expires with the revoked token
//
// Multi-key mutations (failure counting, rotation, bulk revocation) run as
// Lua scripts so each is a single atomic step on the server. Scripts derive
// some keys from the prefix, so all keys of one store must live on the same
// node; use a standalone client or a cluster hash tag in the prefix.
package redisstore

import (
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/clock"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "authcore"

// Options are shared by every store in the package.
type Options struct {
	Prefix string
	Clock  clock.Clock
}

func (o Options) prefix() string {
	if o.Prefix == "" {
		return DefaultPrefix
	}
	return o.Prefix
}

// Stores bundles every Redis store over one client.
type Stores struct {
	AccessControl *AccessControl
	RefreshTokens *RefreshTokens
	Denylist      *Denylist
}

// New builds every Redis store over client.
func New(client redis.UniversalClient, opts Options) *Stores {
	return &Stores{
		AccessControl: NewAccessControl(client, opts),
		RefreshTokens: NewRefreshTokens(client, opts),
		Denylist:      NewDenylist(client, opts),
	}
}
