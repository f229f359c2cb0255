package bootstrap

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/token"
)

// Claims are the claims of a self-signed service-account token.
type Claims struct {
	// Scope is the space separated scope the token was minted for.
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type serviceAccount struct {
	email    string
	keyID    string
	key      crypto.Signer
	method   jwt.SigningMethod
	lifetime time.Duration
	allowed  []string
	now      func() time.Time
}

func newServiceAccount(f File, now func() time.Time) (*serviceAccount, error) {
	const op = "bootstrap.service_account"

	if f.ClientEmail == "" || f.PrivateKey == "" {
		return nil, autherr.Configf(op, "client_email and private_key are required")
	}

	key, method, err := ParsePrivateKey([]byte(f.PrivateKey))
	if err != nil {
		return nil, autherr.Config(op, err)
	}

	lifetime := DefaultTokenLifetime
	if f.TokenLifetime != "" {
		lifetime, err = time.ParseDuration(f.TokenLifetime)
		if err != nil {
			return nil, autherr.Config(op, err)
		}
		if lifetime <= 0 {
			return nil, autherr.Configf(op, "token_lifetime must be positive")
		}
	}

	return &serviceAccount{
		email:    f.ClientEmail,
		keyID:    f.PrivateKeyID,
		key:      key,
		method:   method,
		lifetime: lifetime,
		allowed:  slices.Clone(f.AllowedScopes),
		now:      now,
	}, nil
}

func (sa *serviceAccount) acquire(_ context.Context, scope string) (token.Token, error) {
	const op = "bootstrap.service_account"

	if len(sa.allowed) > 0 {
		for _, s := range strings.Fields(scope) {
			if !slices.Contains(sa.allowed, s) {
				return token.Token{}, autherr.Scope(op, scope, fmt.Errorf("scope %q is not allowed for %s", s, sa.email))
			}
		}
	}

	iat := sa.now().Truncate(time.Second)
	exp := iat.Add(sa.lifetime)

	t := jwt.NewWithClaims(sa.method, Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sa.email,
			Subject:   sa.email,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if sa.keyID != "" {
		t.Header["kid"] = sa.keyID
	}

	signed, err := t.SignedString(sa.key)
	if err != nil {
		return token.Token{}, autherr.Acquisition(op, scope, err)
	}
	return token.Token{Value: signed, Type: token.DefaultType, Expiry: exp}, nil
}

// ParsePrivateKey reads an RSA or EC private key in PEM form and picks the
// matching signing method.
func ParsePrivateKey(pemData []byte) (crypto.Signer, jwt.SigningMethod, error) {
	if k, err := jwt.ParseRSAPrivateKeyFromPEM(pemData); err == nil {
		return k, jwt.SigningMethodRS256, nil
	}
	k, err := jwt.ParseECPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: private key is neither RSA nor EC: %w", err)
	}
	m, err := ecMethod(k)
	if err != nil {
		return nil, nil, err
	}
	return k, m, nil
}

func ecMethod(k *ecdsa.PrivateKey) (jwt.SigningMethod, error) {
	switch k.Curve {
	case elliptic.P256():
		return jwt.SigningMethodES256, nil
	case elliptic.P384():
		return jwt.SigningMethodES384, nil
	case elliptic.P521():
		return jwt.SigningMethodES512, nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported curve %s", k.Curve.Params().Name)
	}
}
