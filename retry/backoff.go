package retry

import "github.com/cenkalti/backoff/v5"

// newBackOff maps cfg onto an exponential back-off. Zero delays fall back to
// the library defaults.
func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.BaseDelay > 0 {
		b.InitialInterval = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		b.MaxInterval = cfg.MaxDelay
	}
	b.Multiplier = 2
	b.RandomizationFactor = max(cfg.Jitter, 0)
	b.Reset()
	return b
}
