// Package metrics provides Prometheus collectors for the credential layer.
//
// A nil *Metrics is valid and records nothing, so components accept one
// unconditionally.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/goRawrCreds/autherr"
)

const namespace = "rawr_creds"

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultScope   = "scope_denied"
	ResultTimeout = "timeout"
)

// Cache lookup labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
	CacheStore = "store"
)

// Metrics groups every collector. Create it with New.
type Metrics struct {
	// Acquisitions counts refreshes against the token authority.
	Acquisitions *prometheus.CounterVec
	// AcquisitionSeconds observes refresh latency.
	AcquisitionSeconds *prometheus.HistogramVec
	// CacheLookups counts provider cache outcomes.
	CacheLookups *prometheus.CounterVec
	// CallFailures counts calls aborted before dispatch.
	CallFailures *prometheus.CounterVec
	// Channels tracks channels by state.
	Channels *prometheus.GaugeVec
	// Handshakes counts completed transport handshakes.
	Handshakes *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "acquisitions_total",
				Help:      "Token refreshes against the authority, by scope and result",
			},
			[]string{"scope", "result"},
		),
		AcquisitionSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "acquisition_duration_seconds",
				Help:      "Latency of token refreshes",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "cache_lookups_total",
				Help:      "Provider cache lookups (hit, miss, stale, store)",
			},
			[]string{"scope", "outcome"},
		),
		CallFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "call_auth_failures_total",
				Help:      "Calls aborted because credentials could not be attached",
			},
			[]string{"method", "kind"},
		),
		Channels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "state",
				Help:      "Number of channels per state",
			},
			[]string{"state"},
		),
		Handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "handshakes_total",
				Help:      "Completed transport handshakes by TLS version",
			},
			[]string{"version"},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.Acquisitions, m.AcquisitionSeconds, m.CacheLookups,
		m.CallFailures, m.Channels, m.Handshakes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAcquisition records one refresh.
func (m *Metrics) ObserveAcquisition(scope string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Acquisitions.WithLabelValues(scope, resultOf(err)).Inc()
	m.AcquisitionSeconds.WithLabelValues(scope).Observe(d.Seconds())
}

// ObserveCache records a provider cache outcome.
func (m *Metrics) ObserveCache(scope, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(scope, outcome).Inc()
}

// ObserveCallFailure records a call aborted before dispatch.
func (m *Metrics) ObserveCallFailure(method string, err error) {
	if m == nil {
		return
	}
	m.CallFailures.WithLabelValues(method, kindLabel(err)).Inc()
}

// ChannelTransition moves one channel between state gauges. An empty from
// only increments to.
func (m *Metrics) ChannelTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.Channels.WithLabelValues(from).Dec()
	}
	m.Channels.WithLabelValues(to).Inc()
}

// ObserveHandshake records a completed handshake.
func (m *Metrics) ObserveHandshake(version string) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(version).Inc()
}

func resultOf(err error) string {
	var e *autherr.Error
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, autherr.ErrScope):
		return ResultScope
	case errors.As(err, &e) && e.Timeout:
		return ResultTimeout
	default:
		return ResultFailure
	}
}

func kindLabel(err error) string {
	var inner *autherr.Error
	if errors.As(err, &inner) && inner.Kind == autherr.KindAuth && inner.Err != nil {
		if k := autherr.KindOf(inner.Err); k != autherr.KindUnknown {
			return k.String()
		}
	}
	return autherr.KindOf(err).String()
}
