package gorawrcreds

import (
	"io"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrCreds/metrics"
	"github.com/Keksclan/goRawrCreds/policy"
	"github.com/Keksclan/goRawrCreds/retry"
	"github.com/Keksclan/goRawrCreds/security"
	"github.com/Keksclan/goRawrCreds/tracing"
)

// Client interceptor order. Lower values run first, so request IDs are
// assigned before the span starts and credentials are attached inside it.
// Retries wrap both, so every attempt gets its own span and fresh
// credentials.
const (
	OrderRequestID   = 100
	OrderRetry       = 150
	OrderTracing     = 200
	OrderCredentials = 300
)

// Option configures a Channel.
type Option func(*config)

// WithDialOption passes opt to grpc.NewClient. Transport credentials and
// interceptors set this way are overridden by the channel's own.
func WithDialOption(opt grpc.DialOption) Option {
	return func(c *config) {
		c.dialOptions = append(c.dialOptions, opt)
	}
}

// WithInterceptor adds a client interceptor pair at order. Either may be nil.
func WithInterceptor(order int, unary grpc.UnaryClientInterceptor, stream grpc.StreamClientInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(order, unary, stream)
	}
}

// WithLogger sets the channel logger. Token values are never logged.
func WithLogger(l logr.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithOpenTelemetry installs client tracing interceptors. Zero-value fields
// of cfg fall back to the global OpenTelemetry provider and propagator.
func WithOpenTelemetry(cfg tracing.Config) Option {
	return func(c *config) {
		c.tracing = &cfg
	}
}

// WithPolicy resolves per-method scopes and acquisition timeouts with r.
func WithPolicy(r *policy.Resolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithRequestID sends an x-request-id header with every call.
func WithRequestID() Option {
	return func(c *config) {
		c.requestID = true
	}
}

// WithClassifier declares which targets are safe for bearer tokens over a
// plaintext transport.
func WithClassifier(cls *security.Classifier) Option {
	return func(c *config) {
		c.classifier = cls
	}
}

// WithMetrics records channel state, handshakes and failed calls on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithCloser registers a resource, such as a token store, that Close
// releases after the connection. Closers run in reverse registration order.
func WithCloser(cl io.Closer) Option {
	return func(c *config) {
		c.closers = append(c.closers, cl)
	}
}

// WithCredentialRecovery turns a panicking call credential into an
// AuthError for the affected call.
func WithCredentialRecovery() Option {
	return func(c *config) {
		c.recovery = true
	}
}

// WithRetry retries unary calls that failed with a retryable credential
// error or one of cfg.RetryCodes. Streams are not retried.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) {
		c.middlewares.Add(OrderRetry, retry.UnaryClientInterceptor(cfg), nil)
	}
}
