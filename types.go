package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/lockout"
)

type (
	Account      = directory.Account
	AccountPatch = directory.AccountPatch
	Role         = directory.Role
	HistoryEntry = audit.Entry
	LockoutState = lockout.State
)

const (
	RoleUser  = directory.RoleUser
	RoleAdmin = directory.RoleAdmin
)

// TokenPair is the result of a login or a refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Identity is what a verified access token says about its bearer.
type Identity struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewAccount is the input of RegisterAccount. Role defaults to RoleUser.
type NewAccount struct {
	FirstName string
	LastName  string
	BirthDate *time.Time
	Email     string
	Phone     string
	Role      Role
	Password  string
}
