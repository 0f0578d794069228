package http

import (
	"context"
	"net/http"

	"github.com/mind-engage/mindengage-sheets/internal/users"
)

type UserLister interface {
	List(ctx context.Context, role string) ([]users.User, error)
}

// GET /users?role=
func ListUsersHandler(accounts UserLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := accounts.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
