package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-sheets/internal/rbac"
	"github.com/mind-engage/mindengage-sheets/internal/users"
)

// UserLookup resolves a token subject to its current account.
type UserLookup interface {
	Get(ctx context.Context, id string) (users.User, error)
}

// AttachRoleFromDB replaces the role claimed in the token with the stored
// one, so demotions apply before the token expires. Tokens of deleted users
// are refused. On lookup failures other than not-found the claim is kept
// when allowClaimFallback is set (offline mode) and the request is denied
// otherwise.
func AttachRoleFromDB(lookup UserLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			u, err := lookup.Get(ctx, SubjectFromContext(ctx))
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))
			case errors.Is(err, users.ErrNotFound):
				http.Error(w, "unknown user", http.StatusUnauthorized)
			case allowClaimFallback && rbac.RoleFromContext(ctx) != "":
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
