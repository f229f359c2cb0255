// Package config loads rawrctl configuration from a file and RAWR_*
// environment variables with viper, and turns it into channels and servers.
//
// Nested keys map to upper-case variables joined by underscores, so
// client.tls.ca_file is read from RAWR_CLIENT_TLS_CA_FILE.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Keksclan/goRawrCreds/autherr"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "RAWR"

// Config is the root of the configuration tree.
type Config struct {
	Log     Log     `mapstructure:"log"`
	Tracing Tracing `mapstructure:"tracing"`
	Client  Client  `mapstructure:"client"`
	Server  Server  `mapstructure:"server"`
}

// Log configures the zap sink behind logr.
type Log struct {
	// Level is "debug", "info", "warn" or "error".
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Tracing configures span export.
type Tracing struct {
	// Stdout pretty-prints finished spans to standard output.
	Stdout bool `mapstructure:"stdout"`
}

// TLS names the PEM files of a transport credential.
type TLS struct {
	CAFile             string `mapstructure:"ca_file"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	ServerName         string `mapstructure:"server_name"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// SecureTargets lists what is trusted without TLS.
type SecureTargets struct {
	CIDRs []string `mapstructure:"cidrs"`
	Hosts []string `mapstructure:"hosts"`
	Unix  bool     `mapstructure:"unix"`
}

// Retry configures client retries.
type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Cache configures the token store behind a provider.
type Cache struct {
	// Size is the number of in-process entries. Zero disables the local tier.
	Size          int64  `mapstructure:"size"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// Client configures a channel.
type Client struct {
	Target string `mapstructure:"target"`
	// Plaintext dials without TLS. Bearer credentials are then only sent to
	// targets listed in Secure.
	Plaintext bool          `mapstructure:"plaintext"`
	TLS       TLS           `mapstructure:"tls"`
	Secure    SecureTargets `mapstructure:"secure"`

	// Token is a static bearer token. It takes precedence over
	// CredentialsFile.
	Token string `mapstructure:"token"`
	// CredentialsFile is a bootstrap credentials document. When both it and
	// Token are empty, RAWR_APPLICATION_CREDENTIALS is consulted.
	CredentialsFile string        `mapstructure:"credentials_file"`
	Scope           string        `mapstructure:"scope"`
	RefreshSkew     time.Duration `mapstructure:"refresh_skew"`

	Timeout time.Duration `mapstructure:"timeout"`
	Retry   Retry         `mapstructure:"retry"`
	Cache   Cache         `mapstructure:"cache"`
}

// StaticToken is one accepted bearer token and the subject it stands for.
type StaticToken struct {
	Token   string `mapstructure:"token"`
	Subject string `mapstructure:"subject"`
}

// JWTKey is a PEM public key file verifying service-account tokens signed
// with key ID.
type JWTKey struct {
	ID   string `mapstructure:"id"`
	File string `mapstructure:"file"`
}

// Server configures the verifier server.
type Server struct {
	Listen        string `mapstructure:"listen"`
	MetricsListen string `mapstructure:"metrics_listen"`

	CertFile          string `mapstructure:"cert_file"`
	KeyFile           string `mapstructure:"key_file"`
	ClientCAFile      string `mapstructure:"client_ca_file"`
	RequireClientCert bool   `mapstructure:"require_client_cert"`

	// Tokens lists accepted static bearer tokens. They are lists rather than
	// maps because viper lower-cases map keys.
	Tokens     []StaticToken `mapstructure:"tokens"`
	JWTKeys    []JWTKey      `mapstructure:"jwt_keys"`
	JWTIssuers []string      `mapstructure:"jwt_issuers"`

	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	Secure    SecureTargets `mapstructure:"secure"`
}

// NewViper returns a viper instance with defaults set and RAWR_* variables
// bound. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("tracing.stdout", false)

	v.SetDefault("client.target", "dns:///localhost:50051")
	v.SetDefault("client.plaintext", false)
	v.SetDefault("client.tls.ca_file", "")
	v.SetDefault("client.tls.cert_file", "")
	v.SetDefault("client.tls.key_file", "")
	v.SetDefault("client.tls.server_name", "")
	v.SetDefault("client.tls.insecure_skip_verify", false)
	v.SetDefault("client.secure.cidrs", []string{})
	v.SetDefault("client.secure.hosts", []string{})
	v.SetDefault("client.secure.unix", false)
	v.SetDefault("client.token", "")
	v.SetDefault("client.credentials_file", "")
	v.SetDefault("client.scope", "")
	v.SetDefault("client.refresh_skew", time.Minute)
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.retry.max_attempts", 1)
	v.SetDefault("client.retry.base_delay", 100*time.Millisecond)
	v.SetDefault("client.retry.max_delay", 2*time.Second)
	v.SetDefault("client.cache.size", 0)
	v.SetDefault("client.cache.redis_addr", "")
	v.SetDefault("client.cache.redis_password", "")
	v.SetDefault("client.cache.redis_db", 0)

	v.SetDefault("server.listen", ":50051")
	v.SetDefault("server.metrics_listen", "")
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.client_ca_file", "")
	v.SetDefault("server.require_client_cert", false)
	v.SetDefault("server.jwt_issuers", []string{})
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.burst", 0)
	v.SetDefault("server.secure.cidrs", []string{})
	v.SetDefault("server.secure.hosts", []string{})
	v.SetDefault("server.secure.unix", false)
	return v
}

// Load reads the config file at path, when set, into v and decodes the
// result. Environment variables override the file. Every failure is a
// ConfigError.
func Load(v *viper.Viper, path string) (*Config, error) {
	const op = "config.Load"

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, autherr.Config(op, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, autherr.Config(op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks combinations that would only fail later.
func (c *Config) Validate() error {
	const op = "config.Validate"

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return autherr.Configf(op, "unknown log level %q", c.Log.Level)
	}
	if c.Client.Plaintext && (c.Client.TLS.CAFile != "" || c.Client.TLS.CertFile != "") {
		return autherr.Configf(op, "client.plaintext conflicts with client.tls")
	}
	if (c.Client.TLS.CertFile == "") != (c.Client.TLS.KeyFile == "") {
		return autherr.Configf(op, "client.tls.cert_file and client.tls.key_file must be set together")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return autherr.Configf(op, "server.cert_file and server.key_file must be set together")
	}
	if len(c.Server.Tokens) > 0 && len(c.Server.JWTKeys) > 0 {
		return autherr.Configf(op, "server.tokens and server.jwt_keys are mutually exclusive")
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		return autherr.Configf(op, "negative rate limit")
	}
	return nil
}
