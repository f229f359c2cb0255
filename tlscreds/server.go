package tlscreds

import (
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc/credentials"

	"github.com/Keksclan/goRawrCreds/autherr"
)

// ServerOptions configures server-side transport credentials.
type ServerOptions struct {
	Cert []byte
	Key  []byte
	// ClientCAs enables client certificate verification against these PEM
	// roots.
	ClientCAs []byte
	// RequireClientCert rejects clients without a verified certificate.
	// It needs ClientCAs.
	RequireClientCert bool
}

// NewServer returns server transport credentials for opts.
func NewServer(opts ServerOptions) (credentials.TransportCredentials, error) {
	const op = "tlscreds.NewServer"

	pair, err := tls.X509KeyPair(opts.Cert, opts.Key)
	if err != nil {
		return nil, autherr.Config(op, fmt.Errorf("server key pair: %w", err))
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}

	if opts.ClientCAs != nil {
		pool, _, err := parseRoots(opts.ClientCAs)
		if err != nil {
			return nil, autherr.Config(op, fmt.Errorf("client CAs: %w", err))
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
		if opts.RequireClientCert {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
	} else if opts.RequireClientCert {
		return nil, autherr.Configf(op, "RequireClientCert needs ClientCAs")
	}

	return credentials.NewTLS(cfg), nil
}
