package interceptors

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/ratelimit"
)

// okHandler is a trivial handler that always succeeds.
func okHandler(_ context.Context, _ any) (any, error) { return "ok", nil }

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	st, _ := status.FromError(err)
	return st.Code()
}

func TestRateLimitUnary_GlobalOnly(t *testing.T) {
	global := ratelimit.NewLimiter(0.001, 2) // burst 2, nearly no refill
	ic := RateLimitUnary(global, nil)

	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}

	// First two should pass (burst).
	for i := range 2 {
		_, err := ic(t.Context(), nil, info, okHandler)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third should be rejected.
	_, err := ic(t.Context(), nil, info, okHandler)
	if codeOf(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", codeOf(err))
	}
}

func TestRateLimitUnary_PerMethodIsolation(t *testing.T) {
	global := ratelimit.NewLimiter(1000, 100)
	perMethod := func() *ratelimit.Limiter { return ratelimit.NewLimiter(0.001, 1) }
	ic := RateLimitUnary(global, perMethod)

	heavy := &grpc.UnaryServerInfo{FullMethod: "/api.Service/Heavy"}
	if _, err := ic(t.Context(), nil, heavy, okHandler); err != nil {
		t.Fatalf("first heavy request: unexpected error: %v", err)
	}
	if _, err := ic(t.Context(), nil, heavy, okHandler); codeOf(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted for heavy, got %v", codeOf(err))
	}

	// Another method has its own limiter.
	light := &grpc.UnaryServerInfo{FullMethod: "/api.Service/Light"}
	if _, err := ic(t.Context(), nil, light, okHandler); err != nil {
		t.Fatalf("light request: unexpected error: %v", err)
	}
}

func TestRateLimitStream_Rejects(t *testing.T) {
	ic := RateLimitStream(ratelimit.NewLimiter(0.001, 1), nil)
	info := &grpc.StreamServerInfo{FullMethod: "/svc/Watch"}
	handler := func(_ any, _ grpc.ServerStream) error { return nil }

	if err := ic(nil, nil, info, handler); err != nil {
		t.Fatalf("first stream: unexpected error: %v", err)
	}
	if err := ic(nil, nil, info, handler); codeOf(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", codeOf(err))
	}
}
