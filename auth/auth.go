// Package auth provides the server-side authentication functions used by the
// verifier server: bearer extraction from metadata, a static token table and
// a verifier for self-signed service-account JWTs.
package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/contextx"
)

// AuthFunc is a user-supplied callback that authenticates a gRPC request.
// It receives the request context, the full method name, and the incoming
// metadata.  On success it returns a (possibly enriched) context; on failure
// it returns an error.
type AuthFunc func(ctx context.Context, fullMethod string, md metadata.MD) (context.Context, error)

var (
	errMissingToken = status.Error(codes.Unauthenticated, "missing bearer token")
	errBadScheme    = status.Error(codes.Unauthenticated, "authorization header is not a bearer token")
	errUnknownToken = status.Error(codes.Unauthenticated, "unknown token")
)

// BearerFromMD returns the token of the first authorization header. The
// scheme must be Bearer, compared case-insensitively.
func BearerFromMD(md metadata.MD) (string, error) {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", errMissingToken
	}
	scheme, tok, ok := strings.Cut(vals[0], " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errBadScheme
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", errMissingToken
	}
	return tok, nil
}

// StaticTokens accepts the bearer tokens in tokens, which maps each token to
// the subject it authenticates.
func StaticTokens(tokens map[string]string) AuthFunc {
	table := make(map[string]string, len(tokens))
	for k, v := range tokens {
		table[k] = v
	}
	return func(ctx context.Context, fullMethod string, md metadata.MD) (context.Context, error) {
		tok, err := BearerFromMD(md)
		if err != nil {
			return ctx, err
		}
		subject, ok := table[tok]
		if !ok {
			return ctx, errUnknownToken
		}
		return contextx.WithIdentity(ctx, contextx.Identity{Subject: subject, Method: fullMethod}), nil
	}
}
