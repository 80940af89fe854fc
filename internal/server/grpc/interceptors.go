package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/rbac"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, never payloads
		log.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// Policy maps a full gRPC method name to the permissions that admit it.
// A caller needs any one of them. An empty list admits every known role.
type Policy map[string][]rbac.Permission

// AuthorizeUnary verifies the bearer JWT, checks the method against policy and
// stores the Principal in context. Methods under a public prefix skip the check.
// Methods missing from policy are denied.
func AuthorizeUnary(key []byte, policy Policy, publicPrefixes ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		for _, pfx := range publicPrefixes {
			if strings.HasPrefix(info.FullMethod, pfx) {
				return next(ctx, req)
			}
		}

		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		p, err := principalFromToken(key, tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		perms, ok := policy[info.FullMethod]
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "method not allowed")
		}
		if err := rbac.Authorize(p.Role, perms...); err != nil {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		return next(WithPrincipal(ctx, p), req)
	}
}

// ErrorsUnary maps domain errors to status codes. Unknown errors become a
// generic Internal so no detail leaks to the caller.
func ErrorsUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		resp, err := next(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		st := toStatus(err)
		if st.Code() == codes.Internal {
			log.Error("handler failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return nil, st.Err()
	}
}

func toStatus(err error) *status.Status {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return status.New(codes.PermissionDenied, "forbidden")
	case errors.Is(err, errs.ErrRateLimited):
		return status.New(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrDecryption):
		return status.New(codes.InvalidArgument, "decryption failed")
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, "canceled")
	default:
		return status.New(codes.Internal, "internal")
	}
}
