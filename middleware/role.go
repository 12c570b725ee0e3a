package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
)

// RequireRole admits identities holding one of roles.
func RequireRole(roles ...authcore.Role) func(http.Handler) http.Handler {
	return RequireSelfOrRole(nil, roles...)
}

// RequireSelfOrRole admits identities holding one of roles, and identities
// whose account ID equals accountID(r). A nil accountID disables the self
// check.
func RequireSelfOrRole(accountID func(*http.Request) string, roles ...authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if hasRole(id.Role, roles) || (accountID != nil && id.AccountID != "" && id.AccountID == accountID(r)) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func hasRole(role authcore.Role, roles []authcore.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
