// Package refresh manages the lifecycle of opaque rotating refresh tokens.
//
// # Token format
//
// 32 random bytes encoded as unpadded base64url. Stores only ever see the
// SHA-256 hex digest of the raw bytes; the token value itself is never
// persisted.
//
// # Lifecycle
//
// A token is usable while now < ExpiresAt and RotationCount < MaxRotations.
// Rotate consumes a usable token and returns its successor with the rotation
// count raised by one. The store performs the consume-and-insert as one
// atomic step guarded by the expected rotation count, so of any number of
// concurrent rotations of the same token exactly one succeeds.
//
// # What this package must NOT do
//
//   - Mint access tokens or read account state.
//   - Log or return raw token values.
package refresh
