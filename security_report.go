package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/password"
)

// SecurityReport summarizes the effective security posture of an Engine.
// It carries no key material and is safe to log.
type SecurityReport struct {
	SigningMethod          string
	AccessTTL              time.Duration
	ClockSkew              time.Duration
	AccessRevocation       bool
	RefreshTTL             time.Duration
	RefreshMaxRotations    int
	LockoutThreshold       int
	LockoutDuration        time.Duration
	PasswordValidityWindow time.Duration
	PasswordMinBytes       int
	Hasher                 HasherReport
	EventsEnabled          bool
	MetricsEnabled         bool
}

// HasherReport describes the password hashing parameters.
type HasherReport struct {
	Algorithm   string
	BcryptCost  int    `json:",omitempty"`
	Memory      uint32 `json:",omitempty"`
	Time        uint32 `json:",omitempty"`
	Parallelism uint8  `json:",omitempty"`
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	hc := e.config.Password.Hasher
	hasher := HasherReport{Algorithm: string(hc.Algorithm)}
	if hc.Algorithm == password.AlgorithmBcrypt {
		hasher.BcryptCost = hc.BcryptCost
	} else {
		hasher.Memory = hc.Argon2.Memory
		hasher.Time = hc.Argon2.Time
		hasher.Parallelism = hc.Argon2.Parallelism
	}

	return SecurityReport{
		SigningMethod:          e.config.Token.SigningMethod,
		AccessTTL:              e.config.Token.AccessTTL,
		ClockSkew:              e.config.Token.ClockSkew,
		AccessRevocation:       e.tokens.Revocable(),
		RefreshTTL:             e.config.Refresh.TTL,
		RefreshMaxRotations:    e.config.Refresh.MaxRotations,
		LockoutThreshold:       e.config.Lockout.Threshold,
		LockoutDuration:        e.config.Lockout.Duration,
		PasswordValidityWindow: e.config.Password.ValidityWindow,
		PasswordMinBytes:       password.MinSecretBytes,
		Hasher:                 hasher,
		EventsEnabled:          e.config.Events.Enabled,
		MetricsEnabled:         e.config.Metrics.Enabled,
	}
}
