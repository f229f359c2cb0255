package auth

import (
	"context"
	"crypto"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/bootstrap"
	"github.com/Keksclan/goRawrCreds/contextx"
	"github.com/Keksclan/goRawrCreds/policy"
)

// DefaultJWTMethods are the signing algorithms JWTVerifier accepts unless
// JWTConfig.Methods says otherwise.
var DefaultJWTMethods = []string{"RS256", "ES256", "ES384", "ES512"}

// JWTConfig configures JWTVerifier.
type JWTConfig struct {
	// Keys maps a key ID to its public key. The "" entry verifies tokens
	// without a kid header.
	Keys map[string]crypto.PublicKey
	// Issuers, when set, restricts the accepted iss claims.
	Issuers []string
	// Methods overrides DefaultJWTMethods.
	Methods []string
	// Scopes, when set, maps methods to the scopes a token must carry.
	Scopes *policy.Resolver
	// Now replaces time.Now for expiry checks.
	Now func() time.Time
}

// JWTVerifier returns an AuthFunc that verifies service-account tokens as
// minted by the bootstrap package and stores the caller's Identity in the
// context. A token that verifies but lacks a required scope fails with
// PermissionDenied.
func JWTVerifier(cfg JWTConfig) AuthFunc {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = DefaultJWTMethods
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if cfg.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(cfg.Now))
	}
	parser := jwt.NewParser(parserOpts...)

	keyFunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := cfg.Keys[kid]
		if !ok {
			return nil, fmt.Errorf("auth: unknown key id %q", kid)
		}
		return key, nil
	}

	return func(ctx context.Context, fullMethod string, md metadata.MD) (context.Context, error) {
		raw, err := BearerFromMD(md)
		if err != nil {
			return ctx, err
		}

		var claims bootstrap.Claims
		if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
			return ctx, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}
		if len(cfg.Issuers) > 0 && !slices.Contains(cfg.Issuers, claims.Issuer) {
			return ctx, status.Errorf(codes.Unauthenticated, "issuer %q is not trusted", claims.Issuer)
		}

		id := contextx.Identity{
			Subject: claims.Subject,
			Issuer:  claims.Issuer,
			Scopes:  strings.Fields(claims.Scope),
			Method:  fullMethod,
		}
		if _, pol, ok := cfg.Scopes.Resolve(fullMethod); ok {
			for _, s := range pol.Scopes {
				if !id.HasScope(s) {
					return ctx, status.Errorf(codes.PermissionDenied, "token lacks scope %q", s)
				}
			}
		}
		return contextx.WithIdentity(ctx, id), nil
	}
}
