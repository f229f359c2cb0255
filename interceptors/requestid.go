package interceptors

import (
	"context"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrCreds/contextx"
)

// ensureRequestID returns the context enriched with a request ID if one is not
// already present.
func ensureRequestID(ctx context.Context) context.Context {
	if contextx.RequestIDFromContext(ctx) == "" {
		ctx = contextx.WithRequestID(ctx, uuid.NewString())
	}
	return ctx
}

// incomingRequestID stores the request ID sent by the client, or a new one.
func incomingRequestID(ctx context.Context) context.Context {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(contextx.RequestIDHeader); len(v) > 0 && v[0] != "" {
			return contextx.WithRequestID(ctx, v[0])
		}
	}
	return ensureRequestID(ctx)
}

// outgoingRequestID makes sure the outgoing metadata carries a request ID.
func outgoingRequestID(ctx context.Context) context.Context {
	ctx = ensureRequestID(ctx)
	if md, ok := metadata.FromOutgoingContext(ctx); ok && len(md.Get(contextx.RequestIDHeader)) > 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, contextx.RequestIDHeader, contextx.RequestIDFromContext(ctx))
}

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		return handler(incomingRequestID(ctx), req)
	}
}

// RequestIDStream returns a stream server interceptor that ensures a request ID
// is present in the stream's context.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		wrapped := grpc_middleware.WrapServerStream(ss)
		wrapped.WrappedContext = incomingRequestID(ss.Context())
		return handler(srv, wrapped)
	}
}

// RequestIDUnaryClient returns a unary client interceptor that sends a
// request ID with every call, reusing one already in the context.
func RequestIDUnaryClient() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(outgoingRequestID(ctx), method, req, reply, cc, opts...)
	}
}

// RequestIDStreamClient is the stream counterpart of RequestIDUnaryClient.
func RequestIDStreamClient() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(outgoingRequestID(ctx), desc, cc, method, opts...)
	}
}
