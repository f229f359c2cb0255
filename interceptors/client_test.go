package interceptors

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/Keksclan/goRawrCreds/contextx"
	"github.com/Keksclan/goRawrCreds/security"
)

func makeClientTag(tag string, log *[]string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		*log = append(*log, tag+":before")
		err := invoker(ctx, method, req, reply, cc, opts...)
		*log = append(*log, tag+":after")
		return err
	}
}

func TestChainUnaryClient_Order(t *testing.T) {
	var log []string
	chained := ChainUnaryClient([]grpc.UnaryClientInterceptor{
		makeClientTag("A", &log),
		makeClientTag("B", &log),
	})

	invoker := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		log = append(log, "invoker")
		return nil
	}
	if err := chained(t.Context(), "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"A:before", "B:before", "invoker", "B:after", "A:after"}
	if len(log) != len(expected) {
		t.Fatalf("log mismatch: got %v, want %v", log, expected)
	}
	for i := range expected {
		if log[i] != expected[i] {
			t.Fatalf("log[%d] = %q, want %q\nfull: %v", i, log[i], expected[i], log)
		}
	}
}

func TestChainClient_Empty(t *testing.T) {
	if ChainUnaryClient(nil) != nil {
		t.Fatal("ChainUnaryClient(nil) should return nil")
	}
	if ChainStreamClient(nil) != nil {
		t.Fatal("ChainStreamClient(nil) should return nil")
	}
}

func TestChainStreamClient_Order(t *testing.T) {
	var log []string
	tag := func(name string) grpc.StreamClientInterceptor {
		return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
			log = append(log, name)
			return streamer(ctx, desc, cc, method, opts...)
		}
	}
	chained := ChainStreamClient([]grpc.StreamClientInterceptor{tag("A"), tag("B")})

	streamer := func(context.Context, *grpc.StreamDesc, *grpc.ClientConn, string, ...grpc.CallOption) (grpc.ClientStream, error) {
		log = append(log, "streamer")
		return nil, nil
	}
	if _, err := chained(t.Context(), &grpc.StreamDesc{}, nil, "/svc/S", streamer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log) != 3 || log[0] != "A" || log[1] != "B" || log[2] != "streamer" {
		t.Fatalf("unexpected order: %v", log)
	}
}

func TestCredentialsUnary_AbortsBeforeInvoker(t *testing.T) {
	errNoCreds := errors.New("no creds")
	ic := CredentialsUnary(func(ctx context.Context, _ string) (context.Context, error) {
		return ctx, errNoCreds
	})

	invoker := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		t.Fatal("invoker must not run when attach fails")
		return nil
	}
	if err := ic(t.Context(), "/svc/M", nil, nil, nil, invoker); !errors.Is(err, errNoCreds) {
		t.Fatalf("expected attach error, got %v", err)
	}
}

func TestCredentialsStream_PassesAttachedContext(t *testing.T) {
	ic := CredentialsStream(func(ctx context.Context, _ string) (context.Context, error) {
		return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer t"), nil
	})

	var got string
	streamer := func(ctx context.Context, _ *grpc.StreamDesc, _ *grpc.ClientConn, _ string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
		md, _ := metadata.FromOutgoingContext(ctx)
		if v := md.Get("authorization"); len(v) > 0 {
			got = v[0]
		}
		return nil, nil
	}
	if _, err := ic(t.Context(), &grpc.StreamDesc{}, nil, "/svc/S", streamer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Bearer t" {
		t.Fatalf("expected attached header, got %q", got)
	}
}

func TestRequestIDUnaryClient(t *testing.T) {
	ic := RequestIDUnaryClient()

	var sent []string
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		sent = md.Get(contextx.RequestIDHeader)
		return nil
	}

	if err := ic(t.Context(), "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 1 || len(sent[0]) != 36 {
		t.Fatalf("expected one generated uuid, got %v", sent)
	}

	ctx := contextx.WithRequestID(t.Context(), "req-42")
	if err := ic(ctx, "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 1 || sent[0] != "req-42" {
		t.Fatalf("expected existing id to be reused, got %v", sent)
	}
}

func TestRequestIDUnary_ReadsIncomingHeader(t *testing.T) {
	ic := RequestIDUnary()
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs(contextx.RequestIDHeader, "from-client"))

	var got string
	_, err := ic(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		got = contextx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-client" {
		t.Fatalf("expected incoming id, got %q", got)
	}
}

func TestSecurePeerUnary(t *testing.T) {
	cls, err := security.NewClassifier(security.Config{
		SecureCIDRs:      []string{"10.0.0.0/8"},
		TrustUnixSockets: true,
	})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	ic := SecurePeerUnary(cls)

	cases := []struct {
		name string
		peer *peer.Peer
		want codes.Code
	}{
		{"tls", &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 443}, AuthInfo: credentials.TLSInfo{}}, codes.OK},
		{"trusted cidr", &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5000}}, codes.OK},
		{"unix socket", &peer.Peer{Addr: &net.UnixAddr{Name: "/run/app.sock", Net: "unix"}}, codes.OK},
		{"unnamed unix peer", &peer.Peer{Addr: &net.UnixAddr{Net: "unix"}}, codes.OK},
		{"plaintext public", &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 5000}}, codes.PermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := peer.NewContext(t.Context(), tc.peer)
			_, err := ic(ctx, nil, &grpc.UnaryServerInfo{}, okHandler)
			if codeOf(err) != tc.want {
				t.Fatalf("got %v, want %v", codeOf(err), tc.want)
			}
		})
	}

	if _, err := ic(t.Context(), nil, &grpc.UnaryServerInfo{}, okHandler); codeOf(err) != codes.PermissionDenied {
		t.Fatalf("missing peer should be denied, got %v", codeOf(err))
	}
}
