// Package authcore is an authentication and account-security engine: it
// registers and maintains accounts, verifies secrets, issues signed access
// tokens with rotating opaque refresh tokens, locks accounts after repeated
// failures, enforces password age and reuse rules, and records every change
// to accounts and credentials in an audit history.
//
// Engine methods are safe to call from multiple goroutines once the engine
// is built through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (TokenPair, Identity, MetricsSnapshot, and so on). Policy lives
// in focused sub-packages: lockout, token, refresh, password, audit and
// directory. Persistence sits behind the store contracts those packages
// declare; store/memory, store/redisstore and store/postgres implement them.
//
// # What this package must NOT do
//
//   - Expose Redis clients, SQL handles or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports authcore (no import cycles).
//   - Reveal through errors or timing whether an identifier exists.
//
// # Performance contract
//
// VerifyAccessToken is the hot path. Without a denylist it completes without
// any store round-trip. Login pays one hash verification; refresh and account
// operations are bounded by Config.Store.Timeout per store call.
package authcore
