package gorawrcreds

import (
	"io"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrCreds/internal/core"
	"github.com/Keksclan/goRawrCreds/metrics"
	"github.com/Keksclan/goRawrCreds/policy"
	"github.com/Keksclan/goRawrCreds/security"
	"github.com/Keksclan/goRawrCreds/tracing"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	middlewares core.ClientMiddlewareBuilder
	dialOptions []grpc.DialOption

	log        logr.Logger
	tracing    *tracing.Config
	resolver   *policy.Resolver
	classifier *security.Classifier
	metrics    *metrics.Metrics
	closers    []io.Closer

	requestID bool
	recovery  bool
}

func defaultConfig() config {
	return config{log: logr.Discard()}
}
