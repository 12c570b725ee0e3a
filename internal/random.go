package internal

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// OpaqueTokenSize is the number of random bytes behind an opaque token.
const OpaqueTokenSize = 32

var errTokenSize = errors.New("invalid opaque token size")

// NewOpaqueToken reads OpaqueTokenSize bytes from r and returns the
// base64url (unpadded) encoding together with the raw bytes.
func NewOpaqueToken(r io.Reader) (string, []byte, error) {
	raw := make([]byte, OpaqueTokenSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", nil, fmt.Errorf("read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), raw, nil
}

// DecodeOpaqueToken reverses NewOpaqueToken, rejecting anything that is not
// exactly OpaqueTokenSize bytes of unpadded base64url.
func DecodeOpaqueToken(token string) ([]byte, error) {
	if len(token) != base64.RawURLEncoding.EncodedLen(OpaqueTokenSize) {
		return nil, errTokenSize
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	if len(raw) != OpaqueTokenSize {
		return nil, errTokenSize
	}
	return raw, nil
}

// HashToken returns the lowercase hex SHA-256 of raw. Only this digest is
// ever persisted.
func HashToken(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
