// Package composite combines an optional transport security credential with
// an ordered list of call credentials into one value a channel can bind.
//
// Combining enforces one rule: bearer-style call credentials never travel
// over an unencrypted transport unless the target is known to be secure
// (a unix socket or a mesh address the application declared trusted).
package composite

import (
	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/callcreds"
	"github.com/Keksclan/goRawrCreds/security"
	"github.com/Keksclan/goRawrCreds/tlscreds"
)

// Credential is an immutable combination of at most one transport credential
// and zero or more call credentials applied in order.
type Credential struct {
	transport *tlscreds.Credential
	calls     []callcreds.CallCredential
}

// Option configures Combine.
type Option func(*options)

type options struct {
	target     string
	classifier *security.Classifier
}

// ForTarget validates the combination for target at construction time.
// Without it, call credentials that need transport security require a
// transport credential.
func ForTarget(target string) Option {
	return func(o *options) { o.target = target }
}

// WithClassifier decides which targets are known-secure.
func WithClassifier(c *security.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// Combine returns a Credential. Inputs are copied. It fails with a
// ConfigError when a call credential is nil, or when some call credential
// requires transport security, transport is nil and the target is not
// known-secure.
func Combine(transport *tlscreds.Credential, calls []callcreds.CallCredential, opts ...Option) (*Credential, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	for i, c := range calls {
		if c == nil {
			return nil, autherr.Configf("composite.Combine", "call credential %d is nil", i)
		}
	}

	cred := &Credential{
		transport: transport,
		calls:     append([]callcreds.CallCredential(nil), calls...),
	}
	if err := cred.Validate(o.target, o.classifier); err != nil {
		return nil, err
	}
	return cred, nil
}

// Validate re-applies the composition rule for target.
func (c *Credential) Validate(target string, classifier *security.Classifier) error {
	if c.transport != nil || !c.RequireTransportSecurity() {
		return nil
	}
	if classifier.IsKnownSecure(target) {
		return nil
	}
	if target == "" {
		return autherr.Configf("composite.Validate", "call credentials require transport security but no transport credential was supplied")
	}
	return autherr.Configf("composite.Validate", "call credentials require transport security but target %q is not known to be secure", target)
}

// Transport returns the transport credential, or nil.
func (c *Credential) Transport() *tlscreds.Credential { return c.transport }

// Calls returns a copy of the call credentials in application order.
func (c *Credential) Calls() []callcreds.CallCredential {
	return append([]callcreds.CallCredential(nil), c.calls...)
}

// RequireTransportSecurity reports whether any call credential needs an
// encrypted transport.
func (c *Credential) RequireTransportSecurity() bool {
	for _, cc := range c.calls {
		if cc.RequireTransportSecurity() {
			return true
		}
	}
	return false
}
