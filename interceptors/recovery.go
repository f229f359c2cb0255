package interceptors

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/autherr"
)

// RecoveryUnary returns a unary server interceptor that recovers from panics
// and returns an Internal gRPC error instead of crashing the process.
func RecoveryUnary(log logr.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(fmt.Errorf("panic: %v", r), "handler panicked", "method", info.FullMethod)
				resp = nil
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream returns a stream server interceptor that recovers from panics
// and returns an Internal gRPC error instead of crashing the process.
func RecoveryStream(log logr.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(fmt.Errorf("panic: %v", r), "handler panicked", "method", info.FullMethod)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

// RecoverAttach wraps attach so that a panicking call credential fails only
// the call it was attaching for, with an AuthError.
func RecoverAttach(log logr.Logger, attach AttachFunc) AttachFunc {
	return func(ctx context.Context, method string) (_ context.Context, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(fmt.Errorf("panic: %v", r), "call credential panicked", "method", method)
				err = autherr.Auth("interceptors.RecoverAttach", fmt.Errorf("call credential panicked: %v", r))
			}
		}()
		return attach(ctx, method)
	}
}
