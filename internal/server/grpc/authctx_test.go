package grpcserver

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/visitguard/internal/rbac"
)

func TestWithPrincipal_And_PrincipalFrom(t *testing.T) {
	t.Parallel()

	if p, ok := PrincipalFrom(context.Background()); ok || p.ID != uuid.Nil {
		t.Fatalf("expected no principal in empty ctx")
	}

	want := Principal{ID: uuid.Must(uuid.NewV4()), Role: rbac.RoleSecurity}
	ctx := WithPrincipal(context.Background(), want)

	got, ok := PrincipalFrom(ctx)
	if !ok {
		t.Fatalf("expected principal in ctx")
	}
	if got != want {
		t.Fatalf("mismatch: got %+v, want %+v", got, want)
	}

	type ctxKey string
	const principalKey ctxKey = "vg.principal"
	bad := context.WithValue(context.Background(), principalKey, "not-a-principal")
	if _, ok := PrincipalFrom(bad); ok {
		t.Fatalf("expected miss on wrong typed value")
	}
}
