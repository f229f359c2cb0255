// Package retry retries client calls whose failure is worth another attempt.
// Credential failures are judged by their kind: acquisition and handshake
// failures are retried, configuration and scope failures are not. Other
// errors are retried when their gRPC code is listed in Config.RetryCodes.
package retry

import (
	"context"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/autherr"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries
	// double it.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// MaxElapsed bounds the total time spent retrying. Zero keeps the
	// back-off library's default.
	MaxElapsed time.Duration

	// RetryCodes lists the gRPC status codes retried for errors that are not
	// credential failures.
	RetryCodes []codes.Code

	// Log receives one V(1) line per retry.
	Log logr.Logger
}

// Retryable reports whether err deserves another attempt under cfg.
func (cfg Config) Retryable(err error) bool {
	if autherr.KindOf(err) != autherr.KindUnknown {
		return autherr.IsRetryable(err)
	}
	st, ok := status.FromError(err)
	return ok && slices.Contains(cfg.RetryCodes, st.Code())
}

// Do calls fn up to cfg.MaxAttempts times, retrying only errors that
// cfg.Retryable accepts. Between attempts an exponential back-off delay is
// applied. When ctx ends during a wait, Do returns the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		res, err := fn(ctx)
		if err != nil && !cfg.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(max(cfg.MaxAttempts, 1))),
	}
	if cfg.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(cfg.MaxElapsed))
	}
	if cfg.Log.GetSink() != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			cfg.Log.V(1).Info("retrying", "error", err.Error(), "backoff", next)
		}))
	}
	return backoff.Retry(ctx, op, opts...)
}

// UnaryClientInterceptor retries unary calls with cfg. Every attempt runs
// the rest of the chain again, so credentials are attached afresh.
func UnaryClientInterceptor(cfg Config) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, invoker(ctx, method, req, reply, cc, opts...)
		})
		return err
	}
}
