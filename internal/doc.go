// Package internal holds helpers private to authcore: opaque token
// generation and hashing, the security event dispatcher and the HTTP API
// collaborator.
//
// # Sub-packages
//
//   - events: async security event dispatch (Dispatcher + Sink implementations)
//   - httpapi: chi-based HTTP binding for Engine operations
//   - rate: fixed-window request budget shared through Redis
//
// Nothing here is part of the public authcore API.
package internal
