package config

import (
	"crypto"
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/credentials"

	"github.com/Keksclan/goRawrCreds/auth"
	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/server"
	"github.com/Keksclan/goRawrCreds/tlscreds"
)

// Options translates s into server options. Bearer authentication over a
// plaintext connection is only accepted from peers listed in s.Secure.
func (s Server) Options(log logr.Logger) ([]server.Option, error) {
	const op = "config.Server"

	opts := []server.Option{
		server.WithLogger(log),
		server.WithRecovery(),
		server.WithRequestID(),
	}

	if s.CertFile != "" {
		creds, err := s.transport()
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithTransport(creds))
	}

	if s.RateLimit > 0 {
		opts = append(opts, server.WithRateLimit(s.RateLimit, max(s.Burst, 1)))
	}

	authFn, err := s.authFunc()
	if err != nil {
		return nil, err
	}
	if authFn == nil {
		return opts, nil
	}
	if s.CertFile == "" {
		if s.Secure.empty() {
			return nil, autherr.Configf(op, "bearer authentication without TLS needs server.secure")
		}
		cls, err := s.Secure.Classifier()
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithSecurePeer(cls))
	}
	return append(opts, server.WithAuth(authFn)), nil
}

func (s Server) transport() (credentials.TransportCredentials, error) {
	const op = "config.Server"

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

	cert, err := read(s.CertFile)
	if err != nil {
		return nil, err
	}
	key, err := read(s.KeyFile)
	if err != nil {
		return nil, err
	}
	cas, err := read(s.ClientCAFile)
	if err != nil {
		return nil, err
	}
	return tlscreds.NewServer(tlscreds.ServerOptions{
		Cert:              cert,
		Key:               key,
		ClientCAs:         cas,
		RequireClientCert: s.RequireClientCert,
	})
}

func (s Server) authFunc() (auth.AuthFunc, error) {
	const op = "config.Server"

	if len(s.Tokens) > 0 {
		table := make(map[string]string, len(s.Tokens))
		for _, t := range s.Tokens {
			if t.Token == "" || t.Subject == "" {
				return nil, autherr.Configf(op, "static token entries need token and subject")
			}
			table[t.Token] = t.Subject
		}
		return auth.StaticTokens(table), nil
	}

	if len(s.JWTKeys) == 0 {
		return nil, nil
	}
	keys := make(map[string]crypto.PublicKey, len(s.JWTKeys))
	for _, k := range s.JWTKeys {
		data, err := os.ReadFile(k.File)
		if err != nil {
			return nil, autherr.Config(op, err)
		}
		pub, err := parsePublicKey(data)
		if err != nil {
			return nil, autherr.Config(op, fmt.Errorf("jwt key %q: %w", k.ID, err))
		}
		keys[k.ID] = pub
	}
	return auth.JWTVerifier(auth.JWTConfig{Keys: keys, Issuers: s.JWTIssuers}), nil
}

func parsePublicKey(data []byte) (crypto.PublicKey, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	return nil, errors.New("not a PEM encoded RSA or EC public key")
}
