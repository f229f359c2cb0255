// Package bootstrap loads application credentials from a JSON file named by
// the RAWR_APPLICATION_CREDENTIALS environment variable and turns them into a
// token.AcquireFunc plus the identity the tokens belong to.
//
// Three file types are understood:
//
//	{"type": "static", "access_token": "...", "expiry": "2026-01-02T15:04:05Z"}
//	{"type": "service_account", "client_email": "...", "private_key": "-----BEGIN ...",
//	 "private_key_id": "k1", "token_lifetime": "1h", "allowed_scopes": ["read"]}
//	{"type": "client_credentials", "client_id": "...", "client_secret": "...",
//	 "token_url": "https://auth.example.com/token"}
package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/token"
)

// EnvVar names the environment variable holding the credentials file path.
const EnvVar = "RAWR_APPLICATION_CREDENTIALS"

// File types.
const (
	TypeStatic            = "static"
	TypeServiceAccount    = "service_account"
	TypeClientCredentials = "client_credentials"
)

// DefaultTokenLifetime is used for service-account tokens when the file does
// not set token_lifetime.
const DefaultTokenLifetime = time.Hour

// File is the on-disk credentials document.
type File struct {
	Type string `json:"type"`

	AccessToken string `json:"access_token,omitempty"`
	Expiry      string `json:"expiry,omitempty"`

	ClientEmail   string   `json:"client_email,omitempty"`
	PrivateKey    string   `json:"private_key,omitempty"`
	PrivateKeyID  string   `json:"private_key_id,omitempty"`
	TokenLifetime string   `json:"token_lifetime,omitempty"`
	AllowedScopes []string `json:"allowed_scopes,omitempty"`

	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
}

// Option configures loading.
type Option func(*options)

type options struct {
	now        func() time.Time
	httpClient *http.Client
}

// WithClock replaces time.Now for issued-at and expiry of service-account
// tokens.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHTTPClient sets the client used to reach a client_credentials token
// endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// envPath is read once per process.
var envPath = sync.OnceValues(func() (string, bool) {
	return os.LookupEnv(EnvVar)
})

// Credentials is a parsed credentials file.
type Credentials struct {
	// Acquire mints or fetches tokens for the identity.
	Acquire token.AcquireFunc
	// Identity names the principal the tokens belong to. It is stable for a
	// given file and distinct between identities, so it can namespace a
	// token store shared by several processes. It never contains a secret.
	Identity string
	// Lifetime is the lifetime of minted tokens, zero when the authority
	// decides.
	Lifetime time.Duration
}

// FromEnv loads the file named by EnvVar. An unset or empty variable is a
// ConfigError.
func FromEnv(opts ...Option) (*Credentials, error) {
	path, ok := envPath()
	if !ok || path == "" {
		return nil, autherr.Configf("bootstrap.FromEnv", "%s is not set", EnvVar)
	}
	return Load(path, opts...)
}

// Load reads and parses the credentials file at path.
func Load(path string, opts ...Option) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, autherr.Config("bootstrap.Load", err)
	}
	return Parse(data, opts...)
}

// Parse builds Credentials from a credentials document. Unknown types and
// missing fields are ConfigErrors.
func Parse(data []byte, opts ...Option) (*Credentials, error) {
	const op = "bootstrap.Parse"

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, autherr.Config(op, err)
	}

	switch f.Type {
	case TypeStatic:
		acquire, err := staticAcquirer(f)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256([]byte(f.AccessToken))
		return &Credentials{Acquire: acquire, Identity: "static:" + hex.EncodeToString(sum[:16])}, nil
	case TypeServiceAccount:
		sa, err := newServiceAccount(f, o.now)
		if err != nil {
			return nil, err
		}
		return &Credentials{Acquire: sa.acquire, Identity: "service_account:" + sa.email, Lifetime: sa.lifetime}, nil
	case TypeClientCredentials:
		acquire, err := clientCredentialsAcquirer(f, o.httpClient)
		if err != nil {
			return nil, err
		}
		return &Credentials{Acquire: acquire, Identity: "client_credentials:" + f.ClientID + "@" + f.TokenURL}, nil
	case "":
		return nil, autherr.Configf(op, "credentials file has no type")
	default:
		return nil, autherr.Configf(op, "unknown credentials type %q", f.Type)
	}
}

func staticAcquirer(f File) (token.AcquireFunc, error) {
	const op = "bootstrap.static"

	if f.AccessToken == "" {
		return nil, autherr.Configf(op, "access_token is required")
	}
	var expiry time.Time
	if f.Expiry != "" {
		t, err := time.Parse(time.RFC3339, f.Expiry)
		if err != nil {
			return nil, autherr.Config(op, err)
		}
		expiry = t
	}
	return token.Static(f.AccessToken, expiry), nil
}

func clientCredentialsAcquirer(f File, hc *http.Client) (token.AcquireFunc, error) {
	const op = "bootstrap.client_credentials"

	if f.ClientID == "" || f.TokenURL == "" {
		return nil, autherr.Configf(op, "client_id and token_url are required")
	}
	acquire := token.ClientCredentials(clientcredentials.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		TokenURL:     f.TokenURL,
	})
	if hc == nil {
		return acquire, nil
	}
	return func(ctx context.Context, scope string) (token.Token, error) {
		return acquire(context.WithValue(ctx, oauth2.HTTPClient, hc), scope)
	}, nil
}
