package bootstrap

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/Keksclan/goRawrCreds/autherr"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, f File) string {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func rsaKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

func TestStatic(t *testing.T) {
	path := writeFile(t, File{Type: TypeStatic, AccessToken: "abc", Expiry: "2026-03-01T13:00:00Z"})

	creds, err := Load(path)
	require.NoError(t, err)
	require.Zero(t, creds.Lifetime)

	tok, err := creds.Acquire(t.Context(), "ignored")
	require.NoError(t, err)
	require.Equal(t, "abc", tok.Value)
	require.True(t, tok.Expiry.Equal(fixedNow.Add(time.Hour)))
}

func TestServiceAccountRSA(t *testing.T) {
	key, keyPEM := rsaKeyPEM(t)
	path := writeFile(t, File{
		Type:          TypeServiceAccount,
		ClientEmail:   "svc@rawr.example",
		PrivateKey:    keyPEM,
		PrivateKeyID:  "k1",
		TokenLifetime: "30m",
	})

	creds, err := Load(path, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	require.Equal(t, "service_account:svc@rawr.example", creds.Identity)
	require.Equal(t, 30*time.Minute, creds.Lifetime)

	tok, err := creds.Acquire(t.Context(), "read write")
	require.NoError(t, err)
	require.True(t, tok.Expiry.Equal(fixedNow.Add(30*time.Minute)))

	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok.Value, &claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	require.Equal(t, "k1", parsed.Header["kid"])
	require.Equal(t, "svc@rawr.example", claims.Issuer)
	require.Equal(t, "svc@rawr.example", claims.Subject)
	require.Equal(t, "read write", claims.Scope)
	require.True(t, claims.IssuedAt.Equal(fixedNow))
}

func TestServiceAccountEC(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	creds, err := Parse(mustJSON(t, File{Type: TypeServiceAccount, ClientEmail: "ec@rawr.example", PrivateKey: string(keyPEM)}))
	require.NoError(t, err)
	require.Equal(t, DefaultTokenLifetime, creds.Lifetime)

	tok, err := creds.Acquire(t.Context(), "read")
	require.NoError(t, err)

	parsed, err := jwt.Parse(tok.Value, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)
}

func TestServiceAccountAllowedScopes(t *testing.T) {
	_, keyPEM := rsaKeyPEM(t)
	creds, err := Parse(mustJSON(t, File{
		Type:          TypeServiceAccount,
		ClientEmail:   "svc@rawr.example",
		PrivateKey:    keyPEM,
		AllowedScopes: []string{"read"},
	}))
	require.NoError(t, err)
	acquire := creds.Acquire

	_, err = acquire(t.Context(), "read")
	require.NoError(t, err)

	_, err = acquire(t.Context(), "read admin")
	require.ErrorIs(t, err, autherr.ErrScope)
}

func TestClientCredentialsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok {
			_ = r.ParseForm()
			id, secret = r.Form.Get("client_id"), r.Form.Get("client_secret")
		}
		w.Header().Set("Content-Type", "application/json")
		if id != "rawr" || secret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	creds, err := Parse(mustJSON(t, File{
		Type:         TypeClientCredentials,
		ClientID:     "rawr",
		ClientSecret: "s3cret",
		TokenURL:     srv.URL,
	}), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.Equal(t, "client_credentials:rawr@"+srv.URL, creds.Identity)
	require.NotContains(t, creds.Identity, "s3cret")

	tok, err := creds.Acquire(t.Context(), "read")
	require.NoError(t, err)
	require.Equal(t, "cc-token", tok.Value)
}

func TestMalformedInputIsConfigError(t *testing.T) {
	_, keyPEM := rsaKeyPEM(t)

	cases := map[string][]byte{
		"not json":        []byte("{"),
		"no type":         []byte(`{}`),
		"unknown type":    []byte(`{"type":"magic"}`),
		"static no token": []byte(`{"type":"static"}`),
		"bad expiry":      []byte(`{"type":"static","access_token":"a","expiry":"tomorrow"}`),
		"sa no key":       []byte(`{"type":"service_account","client_email":"a@b"}`),
		"sa bad key":      []byte(`{"type":"service_account","client_email":"a@b","private_key":"nope"}`),
		"sa bad lifetime": mustJSON(t, File{Type: TypeServiceAccount, ClientEmail: "a@b", PrivateKey: keyPEM, TokenLifetime: "-1h"}),
		"cc no url":       []byte(`{"type":"client_credentials","client_id":"x"}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data)
			require.ErrorIs(t, err, autherr.ErrConfig)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, autherr.ErrConfig)
}

func TestStaticIdentityHidesToken(t *testing.T) {
	a, err := Parse([]byte(`{"type":"static","access_token":"alice-token"}`))
	require.NoError(t, err)
	b, err := Parse([]byte(`{"type":"static","access_token":"bob-token"}`))
	require.NoError(t, err)
	again, err := Parse([]byte(`{"type":"static","access_token":"alice-token"}`))
	require.NoError(t, err)

	require.NotEqual(t, a.Identity, b.Identity)
	require.Equal(t, a.Identity, again.Identity)
	require.NotContains(t, a.Identity, "alice-token")
}

func TestFromEnv(t *testing.T) {
	orig := envPath
	t.Cleanup(func() { envPath = orig })

	envPath = func() (string, bool) { return "", false }
	_, err := FromEnv()
	require.ErrorIs(t, err, autherr.ErrConfig)

	path := writeFile(t, File{Type: TypeStatic, AccessToken: "from-env"})
	envPath = func() (string, bool) { return path, true }
	creds, err := FromEnv()
	require.NoError(t, err)
	tok, err := creds.Acquire(t.Context(), "")
	require.NoError(t, err)
	require.Equal(t, "from-env", tok.Value)
}

func mustJSON(t *testing.T, f File) []byte {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	return data
}
