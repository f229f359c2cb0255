package interceptors

import (
	"context"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/auth"
)

var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

// authenticate runs fn on the incoming metadata. Errors that already carry
// a gRPC status pass through; anything else becomes a bare Unauthenticated
// so verifier internals never reach the caller.
func authenticate(ctx context.Context, fn auth.AuthFunc, fullMethod string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	newCtx, err := fn(ctx, fullMethod, md)
	if err == nil {
		return newCtx, nil
	}
	if _, ok := status.FromError(err); ok {
		return nil, err
	}
	return nil, errUnauthenticated
}

// AuthUnary verifies the caller's credentials with fn before the handler
// runs. The handler sees the context fn returned.
func AuthUnary(fn auth.AuthFunc) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, fn, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is AuthUnary for streams.
func AuthStream(fn auth.AuthFunc) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), fn, info.FullMethod)
		if err != nil {
			return err
		}
		wrapped := grpc_middleware.WrapServerStream(ss)
		wrapped.WrappedContext = ctx
		return handler(srv, wrapped)
	}
}
