package middleware

import (
	"net/http"
)

// Roles allowed to ingest notifications and use the administrative routes.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// RequireRole returns middleware that allows access only to callers whose JWT
// role matches one of the provided role names.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				reject(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range allowedRoles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			reject(w, r, http.StatusForbidden, "forbidden")
		})
	}
}
