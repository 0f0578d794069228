package rbac

import (
	"context"
	"strings"
)

type Checker struct {
	RolePermissions map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.RolePermissions[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

// CanMutate reports whether subject may change a resource created by
// creator: owners always may, others need the manage-any permission.
func (c *Checker) CanMutate(role, subject, creator, manageAny string) bool {
	if subject != "" && subject == creator {
		return true
	}
	return c.Has(role, manageAny)
}

// matchPerm supports "*" and prefix patterns such as "sheet:*".
func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// CanMutate checks against the default policy.
func CanMutate(role, subject, creator, manageAny string) bool {
	return defaultChecker.CanMutate(role, subject, creator, manageAny)
}

// ---- role in context ----

type ctxKey struct{}

var ctxKeyRole = ctxKey{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRole).(string)
	return s
}
