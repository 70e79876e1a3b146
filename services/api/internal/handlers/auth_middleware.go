package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/tutorbase/tutorbase/libs/auth"
	"github.com/tutorbase/tutorbase/libs/httpx"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type userContextKey struct{}

// CurrentUser returns the authenticated user placed in the context by
// Authenticator.Require.
func CurrentUser(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(model.User)
	return u, ok
}

// Authenticator verifies bearer tokens and reloads the user on every request,
// so deactivated accounts and role changes take effect without waiting for
// token expiry.
type Authenticator struct {
	users  *storage.UserRepository
	secret string
}

func NewAuthenticator(users *storage.UserRepository, secret string) *Authenticator {
	return &Authenticator{users: users, secret: secret}
}

// Require gates a route to the given roles. With no roles, any authenticated
// user passes.
func (a *Authenticator) Require(roles ...string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			claims, err := auth.ParseAndVerifyHS256(token, a.secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			user, err := a.users.GetByID(r.Context(), claims.Sub)
			if err != nil {
				if storage.IsNotFound(err) {
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				http.Error(w, "failed to load user", http.StatusInternalServerError)
				return
			}
			if !user.Active {
				http.Error(w, "account disabled", http.StatusForbidden)
				return
			}
			if len(roles) > 0 && !roleAllowed(user.Role, roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
		})
	}
}

func roleAllowed(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
