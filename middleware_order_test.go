package gorawrcreds

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrCreds/callcreds"
	"github.com/Keksclan/goRawrCreds/composite"
	"github.com/Keksclan/goRawrCreds/contextx"
)

func runUnaryChain(t *testing.T, unary []grpc.UnaryClientInterceptor, log *[]string) {
	t.Helper()

	invoker := func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		*log = append(*log, "invoker")
		return nil
	}

	curr := invoker
	for i := len(unary) - 1; i >= 0; i-- {
		next := curr
		ic := unary[i]
		curr = func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			return ic(ctx, method, req, reply, cc, next, opts...)
		}
	}

	if err := curr(t.Context(), "/svc/M", "req", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func mkUnary(log *[]string, tag string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		*log = append(*log, tag)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func TestMiddlewareOrderDeterminesExecution(t *testing.T) {
	var log []string

	cfg := defaultConfig()
	// Register in reverse order; Order values should sort them correctly.
	WithInterceptor(300, mkUnary(&log, "C"), nil)(&cfg)
	WithInterceptor(100, mkUnary(&log, "A"), nil)(&cfg)
	WithInterceptor(200, mkUnary(&log, "B"), nil)(&cfg)

	unary, stream := cfg.middlewares.Build()
	if len(stream) != 0 {
		t.Fatalf("expected no stream interceptors, got %d", len(stream))
	}
	runUnaryChain(t, unary, &log)

	expected := []string{"A", "B", "C", "invoker"}
	if len(log) != len(expected) {
		t.Fatalf("log length mismatch: got %v, want %v", log, expected)
	}
	for i := range expected {
		if log[i] != expected[i] {
			t.Fatalf("log[%d] = %q, want %q\nfull log: %v", i, log[i], expected[i], log)
		}
	}
}

func TestMiddlewareOrderStableForSameOrder(t *testing.T) {
	var log []string

	cfg := defaultConfig()
	// Same order: registration order should be preserved (stable sort).
	WithInterceptor(100, mkUnary(&log, "first"), nil)(&cfg)
	WithInterceptor(100, mkUnary(&log, "second"), nil)(&cfg)
	WithInterceptor(100, mkUnary(&log, "third"), nil)(&cfg)

	unary, _ := cfg.middlewares.Build()
	runUnaryChain(t, unary, &log)

	expected := []string{"first", "second", "third", "invoker"}
	if len(log) != len(expected) {
		t.Fatalf("log length mismatch: got %v, want %v", log, expected)
	}
	for i := range expected {
		if log[i] != expected[i] {
			t.Fatalf("log[%d] = %q, want %q\nfull log: %v", i, log[i], expected[i], log)
		}
	}
}

// apiKey is a call credential that does not need TLS.
type apiKey struct{}

func (apiKey) GetMetadata(context.Context, callcreds.CallInfo) ([]callcreds.Entry, error) {
	e, err := callcreds.NewEntry("x-api-key", "k")
	if err != nil {
		return nil, err
	}
	return []callcreds.Entry{e}, nil
}
func (apiKey) RequireTransportSecurity() bool { return false }

var errStop = errors.New("stop before dispatch")

func TestUserInterceptorsSurroundCredentials(t *testing.T) {
	type seen struct{ requestID, apiKey bool }
	var before, after seen

	observe := func(dst *seen, stop bool) grpc.UnaryClientInterceptor {
		return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			md, _ := metadata.FromOutgoingContext(ctx)
			dst.requestID = contextx.RequestIDFromContext(ctx) != "" && len(md.Get("x-request-id")) == 1
			dst.apiKey = len(md.Get("x-api-key")) == 1
			if stop {
				return errStop
			}
			return invoker(ctx, method, req, reply, cc, opts...)
		}
	}

	cred, err := composite.Combine(nil, []callcreds.CallCredential{apiKey{}})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	ch, err := NewChannel("passthrough:///plain", cred,
		WithRequestID(),
		WithInterceptor(OrderCredentials-50, observe(&before, false), nil),
		WithInterceptor(OrderCredentials+50, observe(&after, true), nil),
	)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })

	if err := ch.Invoke(t.Context(), "/svc/M", nil, nil); !errors.Is(err, errStop) {
		t.Fatalf("expected the interceptor to stop the call, got %v", err)
	}
	if !before.requestID || before.apiKey {
		t.Fatalf("interceptor before credentials saw %+v", before)
	}
	if !after.requestID || !after.apiKey {
		t.Fatalf("interceptor after credentials saw %+v", after)
	}
}
