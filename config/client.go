package config

import (
	"errors"
	"io"
	"os"

	"github.com/go-logr/logr"
	"google.golang.org/grpc/codes"

	gorawrcreds "github.com/Keksclan/goRawrCreds"
	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/bootstrap"
	"github.com/Keksclan/goRawrCreds/cache"
	"github.com/Keksclan/goRawrCreds/callcreds"
	"github.com/Keksclan/goRawrCreds/composite"
	"github.com/Keksclan/goRawrCreds/metrics"
	"github.com/Keksclan/goRawrCreds/retry"
	"github.com/Keksclan/goRawrCreds/security"
	"github.com/Keksclan/goRawrCreds/tlscreds"
	"github.com/Keksclan/goRawrCreds/token"
)

// Classifier builds the classifier for s.
func (s SecureTargets) Classifier() (*security.Classifier, error) {
	return security.NewClassifier(security.Config{
		SecureCIDRs:      s.CIDRs,
		SecureHosts:      s.Hosts,
		TrustUnixSockets: s.Unix,
	})
}

func (s SecureTargets) empty() bool {
	return len(s.CIDRs) == 0 && len(s.Hosts) == 0 && !s.Unix
}

// Transport builds the transport credential. It returns nil for a plaintext
// client.
func (c Client) Transport() (*tlscreds.Credential, error) {
	if c.Plaintext {
		return nil, nil
	}
	var verify *bool
	if c.TLS.InsecureSkipVerify {
		verify = new(bool)
	}
	return tlscreds.NewFromFiles(tlscreds.FileOptions{
		RootCertFile:       c.TLS.CAFile,
		ClientCertFile:     c.TLS.CertFile,
		ClientKeyFile:      c.TLS.KeyFile,
		VerifyPeer:         verify,
		TargetNameOverride: c.TLS.ServerName,
	})
}

// Store builds the token store tiers. It returns a nil Store when neither
// tier is configured, and the closers of every tier it opened.
func (c Cache) Store(log logr.Logger) (cache.Store, []io.Closer, error) {
	var (
		local, shared cache.Store
		closers       []io.Closer
	)
	if c.Size > 0 {
		l1, err := cache.NewL1(c.Size)
		if err != nil {
			return nil, nil, err
		}
		local = l1
		closers = append(closers, l1)
	}
	if c.RedisAddr != "" {
		l2 := cache.NewL2(cache.L2Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Logger:   log,
		})
		shared = l2
		closers = append(closers, l2)
	}

	switch {
	case local != nil && shared != nil:
		return cache.NewTiered(local, shared), closers, nil
	case local != nil:
		return local, closers, nil
	case shared != nil:
		return shared, closers, nil
	}
	return nil, nil, nil
}

// CallCredentials builds the call credentials: the static token if set,
// otherwise an OAuth credential over a provider for the bootstrap
// credentials. Without either, and without RAWR_APPLICATION_CREDENTIALS, it
// returns none.
func (c Client) CallCredentials(log logr.Logger, m *metrics.Metrics) ([]callcreds.CallCredential, []io.Closer, error) {
	if c.Token != "" {
		tok, err := callcreds.NewStaticToken(c.Token)
		if err != nil {
			return nil, nil, err
		}
		return []callcreds.CallCredential{tok}, nil, nil
	}

	var (
		creds *bootstrap.Credentials
		err   error
	)
	switch {
	case c.CredentialsFile != "":
		creds, err = bootstrap.Load(c.CredentialsFile)
	case os.Getenv(bootstrap.EnvVar) != "":
		creds, err = bootstrap.FromEnv()
	default:
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if creds.Lifetime > 0 && creds.Lifetime <= c.RefreshSkew {
		return nil, nil, autherr.Configf("config.Client",
			"token lifetime %s does not exceed client.refresh_skew %s, tokens would never be cached", creds.Lifetime, c.RefreshSkew)
	}

	store, closers, err := c.Cache.Store(log)
	if err != nil {
		return nil, nil, err
	}
	opts := []token.Option{
		token.WithLogger(log),
		token.WithMetrics(m),
		token.WithRefreshSkew(c.RefreshSkew),
	}
	if store != nil {
		opts = append(opts, token.WithStore(store), token.WithStoreNamespace(creds.Identity))
	}
	provider, err := token.New(creds.Acquire, opts...)
	if err != nil {
		return nil, nil, errors.Join(err, closeAll(closers))
	}
	return []callcreds.CallCredential{callcreds.NewOAuth(provider, c.Scope)}, closers, nil
}

// Dial binds the configured credentials to a new channel. opts are applied
// after the ones derived from c.
func (c Client) Dial(log logr.Logger, m *metrics.Metrics, opts ...gorawrcreds.Option) (*gorawrcreds.Channel, error) {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	cls, err := c.Secure.Classifier()
	if err != nil {
		return nil, err
	}
	transport, err := c.Transport()
	if err != nil {
		return nil, err
	}
	calls, closers, err := c.CallCredentials(log, m)
	if err != nil {
		return nil, err
	}

	cred, err := composite.Combine(transport, calls, composite.ForTarget(c.Target), composite.WithClassifier(cls))
	if err != nil {
		return nil, errors.Join(err, closeAll(closers))
	}

	all := []gorawrcreds.Option{
		gorawrcreds.WithLogger(log),
		gorawrcreds.WithMetrics(m),
		gorawrcreds.WithClassifier(cls),
	}
	all = append(all, gorawrcreds.DefaultOptions()...)
	if c.Retry.MaxAttempts > 1 {
		all = append(all, gorawrcreds.WithRetry(retry.Config{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
			RetryCodes:  []codes.Code{codes.Unavailable},
			Log:         log,
		}))
	}
	for _, cl := range closers {
		all = append(all, gorawrcreds.WithCloser(cl))
	}
	all = append(all, opts...)

	ch, err := gorawrcreds.NewChannel(c.Target, cred, all...)
	if err != nil {
		return nil, errors.Join(err, closeAll(closers))
	}
	return ch, nil
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
