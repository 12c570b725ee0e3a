// Package middleware adapts authcore access-token verification to
// net/http.
//
// RequireAuth reads the bearer token, verifies it through the Engine and
// stores the resulting Identity in the request context. RequireRole and
// RequireSelfOrRole authorize on top of that Identity and must be mounted
// after RequireAuth.
//
// Every rejection is a bare 401 or 403. The reason stays in the Engine's
// logs and security events.
package middleware
