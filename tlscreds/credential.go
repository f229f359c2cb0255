// Package tlscreds provides the transport security credential: trust roots,
// an optional client certificate for mutual authentication, a peer
// verification flag and a target name override.
//
// A Credential is inert configuration. It is applied exactly once to a
// handshake configuration when a channel is constructed, and it produces the
// grpc TransportCredentials that perform the actual handshake.
package tlscreds

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"

	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/security"
)

// Options configures New. All PEM material is copied.
type Options struct {
	// RootCerts holds one or more PEM certificates trusted as roots. Nil
	// means the system pool.
	RootCerts []byte
	// ClientCert and ClientKey enable mutual authentication. Both or
	// neither must be set.
	ClientCert []byte
	ClientKey  []byte
	// VerifyPeer defaults to true. Setting it to false disables server
	// certificate verification and is meant for local testing only.
	VerifyPeer *bool
	// TargetNameOverride replaces the host name checked against the server
	// certificate.
	TargetNameOverride string
}

// FileOptions is Options with PEM material read from disk.
type FileOptions struct {
	RootCertFile       string
	ClientCertFile     string
	ClientKeyFile      string
	VerifyPeer         *bool
	TargetNameOverride string
}

// Credential is an immutable transport security credential.
type Credential struct {
	roots      *x509.CertPool
	rootDesc   string
	clientCert *tls.Certificate
	verify     bool
	override   string
}

// New validates opts and returns a Credential. Malformed PEM, a lone client
// certificate or key, and a key that does not match its certificate are
// ConfigErrors.
func New(opts Options) (*Credential, error) {
	const op = "tlscreds.New"

	c := &Credential{
		verify:   opts.VerifyPeer == nil || *opts.VerifyPeer,
		override: opts.TargetNameOverride,
		rootDesc: "system",
	}

	if opts.RootCerts != nil {
		pool, n, err := parseRoots(opts.RootCerts)
		if err != nil {
			return nil, autherr.Config(op, err)
		}
		c.roots = pool
		c.rootDesc = fmt.Sprintf("%d supplied root(s)", n)
	}

	switch {
	case len(opts.ClientCert) == 0 && len(opts.ClientKey) == 0:
	case len(opts.ClientCert) == 0 || len(opts.ClientKey) == 0:
		return nil, autherr.Configf(op, "client certificate and key must be supplied together")
	default:
		pair, err := tls.X509KeyPair(opts.ClientCert, opts.ClientKey)
		if err != nil {
			return nil, autherr.Config(op, fmt.Errorf("client key pair: %w", err))
		}
		c.clientCert = &pair
	}

	return c, nil
}

// NewFromFiles reads the PEM files named in opts and calls New. Unreadable
// files are ConfigErrors.
func NewFromFiles(opts FileOptions) (*Credential, error) {
	const op = "tlscreds.NewFromFiles"

	read := func(path string) ([]byte, error) {
		if path == "" {
			return nil, nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, autherr.Config(op, err)
		}
		return b, nil
	}

	roots, err := read(opts.RootCertFile)
	if err != nil {
		return nil, err
	}
	cert, err := read(opts.ClientCertFile)
	if err != nil {
		return nil, err
	}
	key, err := read(opts.ClientKeyFile)
	if err != nil {
		return nil, err
	}

	return New(Options{
		RootCerts:          roots,
		ClientCert:         cert,
		ClientKey:          key,
		VerifyPeer:         opts.VerifyPeer,
		TargetNameOverride: opts.TargetNameOverride,
	})
}

// ApplyOptions carries channel-level inputs to Apply.
type ApplyOptions struct {
	// Target is the dial target. Its host becomes the server name when no
	// override is configured and the handshake config has none yet.
	Target string
}

// Apply injects the trust roots, the client certificate, the verify flag and
// the server name into cfg. Every other field of cfg is left alone.
func (c *Credential) Apply(cfg *HandshakeConfig, opts ApplyOptions) {
	cfg.RootCAs = c.roots
	cfg.RootDescription = c.rootDesc
	if c.clientCert != nil {
		cfg.Certificates = []tls.Certificate{*c.clientCert}
	} else {
		cfg.Certificates = nil
	}
	cfg.InsecureSkipVerify = !c.verify

	switch {
	case c.override != "":
		cfg.ServerName = c.override
	case cfg.ServerName == "":
		if t, ok := security.ParseTarget(opts.Target); ok && !t.Unix {
			cfg.ServerName = t.Host
		}
	}
}

// MutualTLS reports whether a client certificate is configured.
func (c *Credential) MutualTLS() bool { return c.clientCert != nil }

// VerifyPeer reports whether the server certificate is verified.
func (c *Credential) VerifyPeer() bool { return c.verify }

// RootDescription describes the root of trust: "system" or the number of
// supplied roots.
func (c *Credential) RootDescription() string { return c.rootDesc }

// TransportCredentials builds the grpc transport credentials for target.
func (c *Credential) TransportCredentials(target string, opts ...TransportOption) credentials.TransportCredentials {
	var to transportOptions
	for _, o := range opts {
		o(&to)
	}

	cfg := &HandshakeConfig{MinVersion: tls.VersionTLS12}
	c.Apply(cfg, ApplyOptions{Target: target})

	tc := credentials.NewTLS(cfg.TLSConfig())
	if to.observer == nil {
		return tc
	}
	return &observed{TransportCredentials: tc, observer: to.observer, rootDesc: c.rootDesc}
}

// TransportOption customises TransportCredentials.
type TransportOption func(*transportOptions)

type transportOptions struct {
	observer Observer
}

// WithObserver reports every completed client handshake to obs and turns
// handshake failures into HandshakeErrors.
func WithObserver(obs Observer) TransportOption {
	return func(o *transportOptions) { o.observer = obs }
}

func parseRoots(pemData []byte) (*x509.CertPool, int, error) {
	certs, err := parseCertificates(pemData)
	if err != nil {
		return nil, 0, err
	}
	if len(certs) == 0 {
		return nil, 0, errors.New("root certificates: no PEM certificate found")
	}
	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return pool, len(certs), nil
}
