package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	gorawrcreds "github.com/Keksclan/goRawrCreds"
	"github.com/Keksclan/goRawrCreds/ping"
	"github.com/Keksclan/goRawrCreds/tracing"
)

func newPingCmd(e *env) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Call Ping through a credentialed channel",
		Long: `ping binds the configured transport and call credentials to a channel,
calls the verifier's Ping RPC and prints who the server authenticated and
what the TLS handshake negotiated.`,
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

			var opts []gorawrcreds.Option
			if tp != nil {
				opts = append(opts, gorawrcreds.WithOpenTelemetry(tracing.Config{TracerProvider: tp}))
			}
			ch, err := cfg.Client.Dial(log, nil, opts...)
			if err != nil {
				return err
			}
			defer func() {
				if err := ch.Close(); err != nil {
					log.Error(err, "closing channel")
				}
			}()

			ctx := cmd.Context()
			if cfg.Client.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Client.Timeout)
				defer cancel()
			}

			resp, err := ping.NewClient(ch).Ping(ctx, &ping.PingRequest{Message: message})
			if err != nil {
				return fmt.Errorf("ping %s: %w", cfg.Client.Target, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "message:     %s\n", resp.Message)
			fmt.Fprintf(out, "subject:     %s\n", resp.Subject)
			fmt.Fprintf(out, "request id:  %s\n", resp.RequestID)
			fmt.Fprintf(out, "server time: %s\n", time.Unix(resp.ServerTimeUnix, 0).UTC().Format(time.RFC3339))
			if sc := ch.SecurityContext(); sc != nil {
				fmt.Fprintf(out, "tls:         %s %s\n", sc.Version(), sc.Cipher())
				fmt.Fprintf(out, "peer:        %s (verified: %t, roots: %s)\n", sc.PeerCommonName, sc.Verified, sc.RootOfTrust)
			} else {
				fmt.Fprintln(out, "tls:         none")
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&message, "message", "m", "ping", "Message echoed by the server")
	fs.String("target", "", "Dial target, e.g. dns:///host:443 or unix:/path")
	fs.Bool("plaintext", false, "Dial without TLS")
	fs.String("ca-file", "", "PEM roots to verify the server with")
	fs.String("cert-file", "", "PEM client certificate for mutual TLS")
	fs.String("key-file", "", "PEM client key for mutual TLS")
	fs.String("server-name", "", "Override the name checked against the server certificate")
	fs.Bool("insecure-skip-verify", false, "Do not verify the server certificate (testing only)")
	fs.String("token", "", "Static bearer token")
	fs.String("credentials-file", "", "Bootstrap credentials file")
	fs.String("scope", "", "Token scope to request")
	fs.Bool("secure-unix", false, "Trust unix sockets for bearer tokens without TLS")
	fs.Duration("timeout", 10*time.Second, "Call timeout")
	fs.Int("retries", 1, "Attempts per call, including the first")
	e.bind(fs, map[string]string{
		"client.target":                   "target",
		"client.plaintext":                "plaintext",
		"client.tls.ca_file":              "ca-file",
		"client.tls.cert_file":            "cert-file",
		"client.tls.key_file":             "key-file",
		"client.tls.server_name":          "server-name",
		"client.tls.insecure_skip_verify": "insecure-skip-verify",
		"client.token":                    "token",
		"client.credentials_file":         "credentials-file",
		"client.scope":                    "scope",
		"client.secure.unix":              "secure-unix",
		"client.timeout":                  "timeout",
		"client.retry.max_attempts":       "retries",
	})
	return cmd
}
