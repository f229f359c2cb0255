package server

import (
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/Keksclan/goRawrCreds/auth"
	"github.com/Keksclan/goRawrCreds/interceptors"
	"github.com/Keksclan/goRawrCreds/internal/core"
	"github.com/Keksclan/goRawrCreds/ratelimit"
	"github.com/Keksclan/goRawrCreds/security"
	"github.com/Keksclan/goRawrCreds/tracing"
)

// Server interceptor order. Lower values run first.
const (
	OrderRecovery   = 0
	OrderRequestID  = 100
	OrderTracing    = 200
	OrderSecurePeer = 300
	OrderRateLimit  = 400
	OrderAuth       = 500
	OrderCustom     = 1000
)

// config holds the internal configuration assembled via functional options.
type config struct {
	middlewares core.MiddlewareBuilder
	transport   credentials.TransportCredentials
	gatherer    prometheus.Gatherer
	log         logr.Logger

	recovery bool
}

// Option configures a Server.
type Option func(*config)

// WithUnaryInterceptor appends a unary server interceptor after the
// built-in ones.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(OrderCustom, i, nil)
	}
}

// WithStreamInterceptor appends a stream server interceptor after the
// built-in ones.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(OrderCustom, nil, i)
	}
}

// WithTransport serves with creds, typically from tlscreds.NewServer.
func WithTransport(creds credentials.TransportCredentials) Option {
	return func(c *config) {
		c.transport = creds
	}
}

// WithAuth authenticates every call with fn.
func WithAuth(fn auth.AuthFunc) Option {
	return func(c *config) {
		c.middlewares.Add(OrderAuth, interceptors.AuthUnary(fn), interceptors.AuthStream(fn))
	}
}

// WithRecovery turns handler panics into codes.Internal. The recovery
// interceptors always run first.
func WithRecovery() Option {
	return func(c *config) {
		c.recovery = true
	}
}

// WithRequestID assigns every call a request ID, reusing the client's.
func WithRequestID() Option {
	return func(c *config) {
		c.middlewares.Add(OrderRequestID, interceptors.RequestIDUnary(), interceptors.RequestIDStream())
	}
}

// WithSecurePeer rejects plaintext calls from addresses cls does not trust.
func WithSecurePeer(cls *security.Classifier) Option {
	return func(c *config) {
		c.middlewares.Add(OrderSecurePeer, interceptors.SecurePeerUnary(cls), interceptors.SecurePeerStream(cls))
	}
}

// WithRateLimit allows rps calls per second overall, with bursts of burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		l := ratelimit.NewLimiter(rps, burst)
		c.middlewares.Add(OrderRateLimit, interceptors.RateLimitUnary(l, nil), interceptors.RateLimitStream(l, nil))
	}
}

// WithOpenTelemetry creates server spans for every call.
func WithOpenTelemetry(cfg tracing.Config) Option {
	return func(c *config) {
		c.middlewares.Add(OrderTracing, tracing.UnaryServerInterceptor(&cfg), tracing.StreamServerInterceptor(&cfg))
	}
}

// WithGatherer serves g from MetricsHandler instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *config) {
		c.gatherer = g
	}
}

// WithLogger sets the server logger.
func WithLogger(l logr.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}
