package app

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Keksclan/goRawrCreds/auth"
	"github.com/Keksclan/goRawrCreds/ping"
	"github.com/Keksclan/goRawrCreds/security"
	"github.com/Keksclan/goRawrCreds/server"
)

// startUnixVerifier runs a plaintext verifier on a unix socket that trusts
// unix peers and knows one token.
func startUnixVerifier(t *testing.T) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "rawr.sock")

	cls, err := security.NewClassifier(security.Config{TrustUnixSockets: true})
	require.NoError(t, err)
	srv := server.NewServer(
		server.WithRequestID(),
		server.WithSecurePeer(cls),
		server.WithAuth(auth.StaticTokens(map[string]string{"s3cret": "alice"})),
	)
	srv.RegisterPing(ping.DefaultHandler())

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, srv, "unix:"+sock, "", func(net.Addr) { close(ready) })
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("verifier exited early: %v", err)
	}
	return "unix:" + sock
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestPingCommand(t *testing.T) {
	target := startUnixVerifier(t)

	out, err := execute(t, "ping", "--log-level", "error",
		"--target", target, "--plaintext", "--secure-unix", "--token", "s3cret", "-m", "hello")
	require.NoError(t, err)
	require.Contains(t, out, "message:     hello")
	require.Contains(t, out, "subject:     alice")
	require.Contains(t, out, "tls:         none")
}

func TestPingCommandTracesToStdout(t *testing.T) {
	target := startUnixVerifier(t)

	out, err := execute(t, "ping", "--log-level", "error", "--trace-stdout",
		"--target", target, "--plaintext", "--secure-unix", "--token", "s3cret")
	require.NoError(t, err)
	require.Contains(t, out, "subject:     alice")
	require.Contains(t, out, `"SpanContext"`)
}

func TestPingCommandRefusesPlaintextBearer(t *testing.T) {
	_, err := execute(t, "ping", "--log-level", "error",
		"--target", "dns:///api.example.com:443", "--plaintext", "--token", "s3cret")
	require.ErrorContains(t, err, "not known to be secure")
}

func TestPingCommandRejectedToken(t *testing.T) {
	target := startUnixVerifier(t)

	_, err := execute(t, "ping", "--log-level", "error",
		"--target", target, "--plaintext", "--secure-unix", "--token", "wrong")
	require.ErrorContains(t, err, "Unauthenticated")
}

func TestServeRejectsBearerWithoutTLSOrSecurePeers(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "rawr.yaml")
	require.NoError(t, writeConfig(cfg, `
server:
  listen: 127.0.0.1:0
  tokens:
    - token: s3cret
      subject: alice
`))

	_, err := execute(t, "serve", "--log-level", "error", "--config", cfg)
	require.ErrorContains(t, err, "server.secure")
}

func writeConfig(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
