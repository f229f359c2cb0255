package tlscreds

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// HandshakeConfig is the mutable handshake configuration a Credential is
// applied to. It converts into a *tls.Config for the transport.
type HandshakeConfig struct {
	RootCAs            *x509.CertPool
	RootDescription    string
	Certificates       []tls.Certificate
	InsecureSkipVerify bool
	ServerName         string
	MinVersion         uint16
	NextProtos         []string
}

// TLSConfig returns a *tls.Config reflecting h. MinVersion is raised to TLS
// 1.2 when unset or lower.
func (h *HandshakeConfig) TLSConfig() *tls.Config {
	minVersion := h.MinVersion
	if minVersion < tls.VersionTLS12 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{
		RootCAs:            h.RootCAs,
		Certificates:       h.Certificates,
		InsecureSkipVerify: h.InsecureSkipVerify,
		ServerName:         h.ServerName,
		MinVersion:         minVersion,
		NextProtos:         h.NextProtos,
	}
}

// parseCertificates decodes every CERTIFICATE block in pemData. Any block
// that fails to parse is an error.
func parseCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
