package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/rbac"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := context.Background()

	ctx = peer.NewContext(ctx, &peer.Peer{Addr: fakeAddr{}})

	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/vg.Service/Method"}

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s, _ := resp.(string); s != "ok" {
		t.Fatalf("resp mismatch: %v", resp)
	}

	wantErr := errors.New("boom")
	hErr := func(ctx context.Context, req any) (any, error) { return nil, wantErr }
	_, err = ic(ctx, "req", info, hErr)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got: %v", err)
	}
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/vg.Service/Panic"}

	panicH := func(ctx context.Context, req any) (any, error) {
		panic("oh no")
	}

	_, err := ic(ctx, "req", info, panicH)
	if err == nil {
		t.Fatalf("expected error from panic")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}
}

func TestRecoverUnary_NoPanicPassThrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/vg.Service/Ok"}

	h := func(ctx context.Context, req any) (any, error) { return 42, nil }

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.(int) != 42 {
		t.Fatalf("resp mismatch: %v", resp)
	}
}

func TestLoggingUnary_DurationFieldDoesNotBlock(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/vg.Service/Sleep"}
	h := func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "done", nil
	}

	start := time.Now()
	resp, err := ic(ctx, "req", info, h)
	if err != nil || resp.(string) != "done" {
		t.Fatalf("unexpected result: %v, %v", resp, err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("duration should reflect handler time")
	}
}

func TestAuthorizeUnary(t *testing.T) {
	t.Parallel()

	key := []byte("k")
	policy := Policy{
		"/vg.Service/Send":   {rbac.NotificationSend},
		"/vg.Service/Manage": {rbac.WebhookManage},
		"/vg.Service/Any":    nil,
	}
	ic := AuthorizeUnary(key, policy, "/grpc.health.v1.Health/")

	var seen Principal
	h := func(ctx context.Context, req any) (any, error) {
		seen, _ = PrincipalFrom(ctx)
		return "ok", nil
	}
	withRole := func(role rbac.Role) context.Context {
		tok, err := IssueToken(key, uuid.Must(uuid.NewV4()), role, time.Minute)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bearer "+tok))
	}
	call := func(ctx context.Context, method string) codes.Code {
		_, err := ic(ctx, "req", &grpc.UnaryServerInfo{FullMethod: method}, h)
		return status.Code(err)
	}

	if c := call(context.Background(), "/grpc.health.v1.Health/Check"); c != codes.OK {
		t.Fatalf("public method must pass, got %v", c)
	}
	if c := call(context.Background(), "/vg.Service/Send"); c != codes.Unauthenticated {
		t.Fatalf("missing token: got %v", c)
	}
	if c := call(withRole(rbac.RoleSecurity), "/vg.Service/Send"); c != codes.OK {
		t.Fatalf("security may send, got %v", c)
	}
	if seen.Role != rbac.RoleSecurity || seen.ID == uuid.Nil {
		t.Fatalf("principal not stored: %+v", seen)
	}
	if c := call(withRole(rbac.RoleSecurity), "/vg.Service/Manage"); c != codes.PermissionDenied {
		t.Fatalf("security may not manage webhooks, got %v", c)
	}
	if c := call(withRole(rbac.RoleManager), "/vg.Service/Any"); c != codes.OK {
		t.Fatalf("empty permission list admits known roles, got %v", c)
	}
	if c := call(withRole(rbac.RoleAdmin), "/vg.Service/Unlisted"); c != codes.PermissionDenied {
		t.Fatalf("unlisted methods must be denied, got %v", c)
	}

	expired, err := IssueToken(key, uuid.Must(uuid.NewV4()), rbac.RoleAdmin, -time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+expired))
	if c := call(ctx, "/vg.Service/Send"); c != codes.Unauthenticated {
		t.Fatalf("expired token: got %v", c)
	}
}

func TestErrorsUnary_Mapping(t *testing.T) {
	t.Parallel()

	ic := ErrorsUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/vg.Service/Err"}
	cases := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("%w: bad", errs.ErrValidation), codes.InvalidArgument},
		{&errs.NotFoundError{Kind: "Webhook", ID: "x"}, codes.NotFound},
		{fmt.Errorf("wrap: %w", errs.ErrForbidden), codes.PermissionDenied},
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{fmt.Errorf("%w: tag", errs.ErrDecryption), codes.InvalidArgument},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.Unavailable, "x"), codes.Unavailable},
		{errors.New("pq: connection refused"), codes.Internal},
	}
	for _, tc := range cases {
		_, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return nil, tc.err })
		st, _ := status.FromError(err)
		if st.Code() != tc.want {
			t.Fatalf("%v: got %v, want %v", tc.err, st.Code(), tc.want)
		}
		if tc.want == codes.Internal && st.Message() != "internal" {
			t.Fatalf("internal errors must not leak detail: %q", st.Message())
		}
	}

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return 7, nil })
	if err != nil || resp.(int) != 7 {
		t.Fatalf("passthrough failed: %v %v", resp, err)
	}
}
