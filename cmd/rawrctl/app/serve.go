package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Keksclan/goRawrCreds/ping"
	"github.com/Keksclan/goRawrCreds/server"
	"github.com/Keksclan/goRawrCreds/tracing"
)

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Ping verifier",
		Long: `serve runs a gRPC server that authenticates bearer credentials and answers
Ping with the authenticated subject. Without TLS, bearer tokens are only
accepted from peers listed under server.secure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.load()
			if err != nil {
				return err
			}
			log, sync, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer sync()

			tp, err := newTracerProvider(cfg.Tracing, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer shutdown(tp, log)

			opts, err := cfg.Server.Options(log)
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			opts = append(opts, server.WithGatherer(reg))
			if tp != nil {
				opts = append(opts, server.WithOpenTelemetry(tracing.Config{TracerProvider: tp}))
			}

			srv := server.NewServer(opts...)
			srv.RegisterPing(ping.DefaultHandler())
			return run(cmd.Context(), srv, cfg.Server.Listen, cfg.Server.MetricsListen, nil)
		},
	}

	fs := cmd.Flags()
	fs.String("listen", ":50051", "gRPC listen address")
	fs.String("metrics-listen", "", "Address serving /metrics; empty disables it")
	fs.String("cert-file", "", "PEM server certificate")
	fs.String("key-file", "", "PEM server key")
	fs.String("client-ca-file", "", "PEM roots verifying client certificates")
	fs.Bool("require-client-cert", false, "Reject clients without a verified certificate")
	fs.Float64("rate-limit", 0, "Calls per second; zero disables limiting")
	fs.Int("burst", 0, "Rate limit burst")
	fs.Bool("secure-unix", false, "Trust unix socket peers for bearer tokens without TLS")
	e.bind(fs, map[string]string{
		"server.listen":              "listen",
		"server.metrics_listen":      "metrics-listen",
		"server.cert_file":           "cert-file",
		"server.key_file":            "key-file",
		"server.client_ca_file":      "client-ca-file",
		"server.require_client_cert": "require-client-cert",
		"server.rate_limit":          "rate-limit",
		"server.burst":               "burst",
		"server.secure.unix":         "secure-unix",
	})
	return cmd
}

// run serves srv on listen until ctx ends. A unix socket is used when
// listen starts with "unix:". ready, when set, receives the bound address.
func run(ctx context.Context, srv *server.Server, listen, metricsListen string, ready func(net.Addr)) error {
	network, addr := "tcp", listen
	if path, ok := strings.CutPrefix(listen, "unix:"); ok {
		network, addr = "unix", path
	}
	lis, err := net.Listen(network, addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(lis) }()

	var httpSrv *http.Server
	if metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.MetricsHandler())
		httpSrv = &http.Server{Addr: metricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}
	if ready != nil {
		ready(lis.Addr())
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	srv.Stop()
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
	}
	return err
}
