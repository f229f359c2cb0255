// Package server is a thin gRPC verifier server: it accepts TLS or
// plaintext connections, authenticates bearer credentials and serves the
// Ping RPC, so a credentialed channel can be exercised end to end.
package server

import (
	"net"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrCreds/interceptors"
	"github.com/Keksclan/goRawrCreds/internal/core"
	"github.com/Keksclan/goRawrCreds/ping"
)

// Server is a minimal wrapper around a gRPC server with optional metrics.
//
// After construction the underlying gRPC server is available through
// [Server.GRPC] so that services can be registered normally:
//
//	srv := server.NewServer(server.WithRecovery(), server.WithAuth(auth.StaticTokens(tokens)))
//	srv.RegisterPing(ping.DefaultHandler())
type Server struct {
	grpcServer *grpc.Server
	gatherer   prometheus.Gatherer
	log        logr.Logger
}

// NewServer creates a Server by applying functional options and wiring the
// resulting interceptor chains into grpc.NewServer. Execution order follows
// the Order constants, not the order options are passed in.
func NewServer(opts ...Option) *Server {
	cfg := config{log: logr.Discard(), gatherer: prometheus.DefaultGatherer}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log.GetSink() == nil {
		cfg.log = logr.Discard()
	}
	log := cfg.log.WithName("server")

	if cfg.recovery {
		cfg.middlewares.Add(OrderRecovery, interceptors.RecoveryUnary(log), interceptors.RecoveryStream(log))
	}

	unary, stream := cfg.middlewares.Build()
	serverOpts := core.BuildServerOptions(unary, stream, interceptors.ChainUnary, interceptors.ChainStream)
	if cfg.transport != nil {
		serverOpts = append(serverOpts, grpc.Creds(cfg.transport))
	}

	return &Server{
		grpcServer: grpc.NewServer(serverOpts...),
		gatherer:   cfg.gatherer,
		log:        log,
	}
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// RegisterPing registers the built-in rawr.Ping service using h.
func (s *Server) RegisterPing(h ping.Handler) {
	ping.Register(s.grpcServer, h)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("serving", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// Stop stops the server gracefully.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}
