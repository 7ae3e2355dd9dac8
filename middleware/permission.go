package middleware

import (
	"net/http"

	"github.com/MrEthical07/goSession/permission"
)

// RequirePermission is RequireSession plus a capability check: a signed-in
// user without p gets 403.
func RequirePermission(engine Engine, p permission.Permission) func(http.Handler) http.Handler {
	session := RequireSession(engine)
	return func(next http.Handler) http.Handler {
		return session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !engine.CanAccess(p) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
