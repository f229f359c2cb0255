package interceptors

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/auth"
	"github.com/Keksclan/goRawrCreds/contextx"
)

func makeUnaryTag(tag string, log *[]string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		*log = append(*log, tag+">")
		resp, err := handler(ctx, req)
		*log = append(*log, "<"+tag)
		return resp, err
	}
}

func makeStreamTag(tag string, log *[]string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		*log = append(*log, tag+">")
		err := handler(srv, ss)
		*log = append(*log, "<"+tag)
		return err
	}
}

func TestChainUnary_Order(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"single", []string{"A"}, []string{"A>", "handler", "<A"}},
		{"three", []string{"A", "B", "C"}, []string{"A>", "B>", "C>", "handler", "<C", "<B", "<A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			var ics []grpc.UnaryServerInterceptor
			for _, tag := range tt.tags {
				ics = append(ics, makeUnaryTag(tag, &log))
			}
			resp, err := ChainUnary(ics)(t.Context(), "req", &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
				log = append(log, "handler")
				return "ok", nil
			})
			if err != nil || resp != "ok" {
				t.Fatalf("got (%v, %v), want (ok, nil)", resp, err)
			}
			if diff := cmp.Diff(tt.want, log); diff != "" {
				t.Fatalf("call order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChainStream_Order(t *testing.T) {
	var log []string
	chained := ChainStream([]grpc.StreamServerInterceptor{
		makeStreamTag("A", &log),
		makeStreamTag("B", &log),
	})
	err := chained(nil, nil, &grpc.StreamServerInfo{}, func(any, grpc.ServerStream) error {
		log = append(log, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"A>", "B>", "handler", "<B", "<A"}, log); diff != "" {
		t.Fatalf("call order (-want +got):\n%s", diff)
	}
}

func TestChain_Empty(t *testing.T) {
	if ChainUnary(nil) != nil {
		t.Fatal("ChainUnary(nil) should return nil")
	}
	if ChainStream(nil) != nil {
		t.Fatal("ChainStream(nil) should return nil")
	}
}

// fakeServerStream carries only a context.
type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestAuthIdentityReachesHandler(t *testing.T) {
	fn := auth.StaticTokens(map[string]string{"s3cret": "alice"})
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "Bearer s3cret"))

	t.Run("unary", func(t *testing.T) {
		var got string
		chained := ChainUnary([]grpc.UnaryServerInterceptor{RequestIDUnary(), AuthUnary(fn)})
		_, err := chained(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(ctx context.Context, _ any) (any, error) {
			id, _ := contextx.IdentityFromContext(ctx)
			got = id.Subject
			return nil, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "alice" {
			t.Fatalf("subject = %q, want alice", got)
		}
	})

	t.Run("stream", func(t *testing.T) {
		var got string
		chained := ChainStream([]grpc.StreamServerInterceptor{AuthStream(fn)})
		err := chained(nil, &fakeServerStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/svc/S"}, func(_ any, ss grpc.ServerStream) error {
			id, _ := contextx.IdentityFromContext(ss.Context())
			got = id.Subject
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "alice" {
			t.Fatalf("subject = %q, want alice", got)
		}
	})
}

func TestAuthErrorsBecomeUnauthenticated(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"plain error is masked", errors.New("db down"), codes.Unauthenticated},
		{"status passes through", status.Error(codes.PermissionDenied, "nope"), codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := func(ctx context.Context, _ string, _ metadata.MD) (context.Context, error) { return ctx, tt.err }
			called := false
			_, err := AuthUnary(fn)(t.Context(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
				called = true
				return nil, nil
			})
			if called {
				t.Fatal("handler ran after failed authentication")
			}
			if got := status.Code(err); got != tt.want {
				t.Fatalf("code = %s, want %s", got, tt.want)
			}
			if tt.want == codes.Unauthenticated && status.Convert(err).Message() != "unauthenticated" {
				t.Fatalf("message leaked: %q", status.Convert(err).Message())
			}
		})
	}
}
