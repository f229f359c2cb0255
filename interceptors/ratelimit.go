package interceptors

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/ratelimit"
)

// errRateLimited is allocated once to avoid per-request allocations on the hot path.
var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// rateLimitState holds the global limiter and lazily created per-method
// limiters.
type rateLimitState struct {
	global    *ratelimit.Limiter
	perMethod func() *ratelimit.Limiter

	mu      sync.Mutex
	methods map[string]*ratelimit.Limiter
}

func newRateLimitState(global *ratelimit.Limiter, perMethod func() *ratelimit.Limiter) *rateLimitState {
	return &rateLimitState{global: global, perMethod: perMethod, methods: make(map[string]*ratelimit.Limiter)}
}

// allow consumes one slot from the method limiter, when configured, and
// from the global limiter.
func (s *rateLimitState) allow(fullMethod string) bool {
	if s.perMethod != nil && !s.methodLimiter(fullMethod).Allow() {
		return false
	}
	return s.global == nil || s.global.Allow()
}

func (s *rateLimitState) methodLimiter(fullMethod string) *ratelimit.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.methods[fullMethod]; ok {
		return l
	}
	l := s.perMethod()
	s.methods[fullMethod] = l
	return l
}

// RateLimitUnary returns a unary server interceptor that rejects requests when
// the applicable rate limiter has been exhausted. perMethod, when non-nil,
// creates one extra limiter per full method name.
func RateLimitUnary(global *ratelimit.Limiter, perMethod func() *ratelimit.Limiter) grpc.UnaryServerInterceptor {
	st := newRateLimitState(global, perMethod)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !st.allow(info.FullMethod) {
			return nil, errRateLimited
		}
		return handler(ctx, req)
	}
}

// RateLimitStream returns a stream server interceptor that rejects requests
// when the applicable rate limiter has been exhausted.
func RateLimitStream(global *ratelimit.Limiter, perMethod func() *ratelimit.Limiter) grpc.StreamServerInterceptor {
	st := newRateLimitState(global, perMethod)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if !st.allow(info.FullMethod) {
			return errRateLimited
		}
		return handler(srv, ss)
	}
}
