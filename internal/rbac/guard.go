package rbac

import (
	"fmt"
	"strings"

	"github.com/and161185/visitguard/internal/errs"
)

// Authorize returns nil when role holds at least one of perms, ErrForbidden otherwise.
// An empty perms list only requires a known role.
func Authorize(role Role, perms ...Permission) error {
	if _, ok := matrix[role]; !ok {
		return fmt.Errorf("%w: unknown role %q", errs.ErrForbidden, role)
	}
	if len(perms) == 0 || HasAnyPermission(role, perms...) {
		return nil
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return fmt.Errorf("%w: role %s lacks %s", errs.ErrForbidden, role, strings.Join(names, "|"))
}

// Guard runs fn only if role is authorized for any of perms.
func Guard[T any](role Role, perms []Permission, fn func() (T, error)) (T, error) {
	if err := Authorize(role, perms...); err != nil {
		var zero T
		return zero, err
	}
	return fn()
}
