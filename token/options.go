package token

import (
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/goRawrCreds/breaker"
	"github.com/Keksclan/goRawrCreds/cache"
	"github.com/Keksclan/goRawrCreds/metrics"
	"github.com/Keksclan/goRawrCreds/ratelimit"
)

// Defaults applied by New.
const (
	DefaultRefreshSkew    = 60 * time.Second
	DefaultRefreshTimeout = 30 * time.Second
)

// Option configures a Provider.
type Option func(*config)

type config struct {
	skew           time.Duration
	refreshTimeout time.Duration
	now            func() time.Time

	store          cache.Store
	storeNamespace string

	breaker *breaker.Breaker
	limiter *ratelimit.Limiter

	log     logr.Logger
	tp      trace.TracerProvider
	tracing bool
	metrics *metrics.Metrics
}

func defaultConfig() config {
	return config{
		skew:           DefaultRefreshSkew,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
		log:            logr.Discard(),
	}
}

// WithRefreshSkew sets how long before expiry a token stops being handed
// out. Zero is allowed; negative values are rejected by New.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *config) { c.skew = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRefreshTimeout bounds a single refresh against the authority.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *config) { c.refreshTimeout = d }
}

// WithStore adds a shared token store consulted before the authority and
// written after every successful refresh. It requires WithStoreNamespace.
func WithStore(s cache.Store) Option {
	return func(c *config) { c.store = s }
}

// WithStoreNamespace prefixes store keys so that providers for different
// identities can share one store. Providers with the same namespace share
// tokens, so ns must identify the credential, not the process.
func WithStoreNamespace(ns string) Option {
	return func(c *config) { c.storeNamespace = ns }
}

// WithBreaker guards the authority with a circuit breaker. Only retryable
// failures count against it.
func WithBreaker(b *breaker.Breaker) Option {
	return func(c *config) { c.breaker = b }
}

// WithLimiter paces refreshes against the authority.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *config) { c.limiter = l }
}

// WithLogger sets the logger. Token values are never logged.
func WithLogger(l logr.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithTracerProvider records a span around every refresh. A nil tp uses the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tp = tp
		c.tracing = true
	}
}

// WithMetrics records refreshes and cache outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}
