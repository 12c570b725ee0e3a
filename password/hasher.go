package password

import (
	"errors"
	"fmt"
	"strings"
)

// Secret length bounds, in bytes.
const (
	MinSecretBytes = 10
	MaxSecretBytes = 1024
)

var (
	// ErrPolicy is returned for secrets that do not meet the minimum length.
	ErrPolicy = errors.New("password policy violation")
	// ErrMalformedHash is returned when an encoded hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher hashes and verifies secrets.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// Algorithm selects a Hasher implementation.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// HasherConfig selects and parameterizes a Hasher.
type HasherConfig struct {
	Algorithm  Algorithm    `toml:"algorithm"`
	Argon2     Argon2Config `toml:"argon2"`
	BcryptCost int          `toml:"bcrypt_cost"`
}

// DefaultHasherConfig returns argon2id with the recommended parameters.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Algorithm: AlgorithmArgon2id,
		Argon2: Argon2Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		BcryptCost: 12,
	}
}

// NewHasher builds the Hasher named by cfg.Algorithm.
func NewHasher(cfg HasherConfig) (Hasher, error) {
	switch Algorithm(strings.ToLower(string(cfg.Algorithm))) {
	case AlgorithmArgon2id, "":
		return NewArgon2(cfg.Argon2)
	case AlgorithmBcrypt:
		return NewBcrypt(cfg.BcryptCost)
	default:
		return nil, fmt.Errorf("password: unsupported algorithm %q", cfg.Algorithm)
	}
}

// CheckSecret applies the length rules shared by all hashers.
func CheckSecret(secret string) error {
	switch {
	case len(secret) < MinSecretBytes:
		return fmt.Errorf("%w: must be at least %d bytes", ErrPolicy, MinSecretBytes)
	case len(secret) > MaxSecretBytes:
		return fmt.Errorf("%w: must be at most %d bytes", ErrPolicy, MaxSecretBytes)
	}
	return nil
}
