package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerHas(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has("user", SheetCreate))
	assert.True(t, c.Has("user", AnswerView))
	assert.False(t, c.Has("user", SheetManageAny))
	assert.False(t, c.Has("user", UsersList))
	assert.True(t, c.Has("admin", SheetManageAny))
	assert.False(t, c.Has("guest", SheetView))

	prefixed := NewChecker(map[string][]string{"grader": {"answer:*"}})
	assert.True(t, prefixed.Has("grader", AnswerManageAny))
	assert.False(t, prefixed.Has("grader", TaskView))
}

func TestCanMutate(t *testing.T) {
	assert.True(t, CanMutate("user", "u1", "u1", SheetManageAny))
	assert.False(t, CanMutate("user", "u2", "u1", SheetManageAny))
	assert.True(t, CanMutate("admin", "root", "u1", SheetManageAny))
	assert.False(t, CanMutate("", "", "", SheetManageAny))
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require(UsersList)(ok)

	for role, want := range map[string]int{"": 403, "user": 403, "admin": 204} {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}
