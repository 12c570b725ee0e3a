// Package password provides the one-way secret hashing used for credentials
// and the password policy enforcer.
//
// # Hashers
//
// Argon2 produces argon2id PHC strings ($argon2id$v=19$m=...,t=...,p=...$salt$hash)
// and Bcrypt produces standard $2a$ bcrypt strings. Both enforce the same
// minimum secret length and compare in constant time. Secrets are hashed as
// raw bytes with no Unicode normalization.
//
// # Policy
//
// Enforcer derives password age from the account history: the newest
// PASSWORD_CHANGE or CREATION entry marks when the current secret was set.
// An account with no such entry is treated as expired.
package password
