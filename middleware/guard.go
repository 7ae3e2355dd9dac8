package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goSession/model"
	"github.com/MrEthical07/goSession/permission"
)

// Engine is the part of goSession.Engine the guards need.
type Engine interface {
	CurrentUser() *model.User
	CanAccess(p permission.Permission) bool
}

type userContextKey struct{}

// UserFromContext returns the user a guard attached to the request.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*model.User)
	return u, ok && u != nil
}

// RequireSession rejects requests with 401 while no user is signed in and
// attaches the current user to the request context otherwise.
func RequireSession(engine Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			u := engine.CurrentUser()
			if u == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey{}, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
