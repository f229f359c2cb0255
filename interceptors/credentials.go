package interceptors

import (
	"context"

	"google.golang.org/grpc"
)

// AttachFunc returns ctx with the credentials for method added to its
// outgoing metadata. A non-nil error aborts the call before it is sent.
type AttachFunc func(ctx context.Context, method string) (context.Context, error)

// CredentialsUnary returns a unary client interceptor that runs attach
// before every call.
func CredentialsUnary(attach AttachFunc) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := attach(ctx, method)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// CredentialsStream returns a stream client interceptor that runs attach
// before a stream is opened.
func CredentialsStream(attach AttachFunc) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := attach(ctx, method)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}
