package grpcserver

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/visitguard/internal/rbac"
)

type ctxKey string

const principalKey ctxKey = "vg.principal"

// Principal is the authenticated caller.
type Principal struct {
	ID   uuid.UUID
	Role rbac.Role
}

// WithPrincipal stores the authenticated caller in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom fetches the caller from context.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
