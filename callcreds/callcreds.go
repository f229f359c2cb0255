// Package callcreds provides per-call credentials: small values that produce
// the metadata entries attached to every outgoing call on a channel.
//
// Three variants ship with the package. StaticToken attaches a fixed bearer
// token. OAuth asks a token provider for a current token of its scope.
// Composite runs several credentials in order and concatenates their entries.
package callcreds

import (
	"context"
	"strings"

	"google.golang.org/grpc/credentials"

	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/token"
)

// CallInfo describes the call metadata is requested for.
type CallInfo struct {
	// Method is the full method name, "/pkg.Service/Method".
	Method string
	// Authority is the channel target authority.
	Authority string
	// Scopes overrides a credential's configured scope for this method.
	Scopes []string
}

// CallCredential produces metadata for one outgoing call. It is invoked right
// before the call's headers are finalised. A returned error aborts the call;
// implementations should return autherr AuthErrors.
type CallCredential interface {
	GetMetadata(ctx context.Context, info CallInfo) ([]Entry, error)
	// RequireTransportSecurity reports whether the entries must only travel
	// over an encrypted transport.
	RequireTransportSecurity() bool
}

// StaticToken attaches a fixed bearer token. It never fails and never blocks.
type StaticToken struct {
	entry Entry
}

// NewStaticToken returns a StaticToken for tok. An empty or non-printable
// token is a ConfigError.
func NewStaticToken(tok string) (*StaticToken, error) {
	e, err := Bearer("", tok)
	if err != nil {
		return nil, autherr.Config("callcreds.NewStaticToken", err)
	}
	return &StaticToken{entry: e}, nil
}

func (s *StaticToken) GetMetadata(context.Context, CallInfo) ([]Entry, error) {
	return []Entry{s.entry}, nil
}

func (s *StaticToken) RequireTransportSecurity() bool { return true }

// TokenSource is what OAuth needs from a token provider.
type TokenSource interface {
	Get(ctx context.Context, scope string) (token.Token, error)
}

// OAuth attaches a bearer token obtained from a TokenSource for its scope.
type OAuth struct {
	source TokenSource
	scope  string
}

// NewOAuth returns an OAuth credential asking source for scope.
func NewOAuth(source TokenSource, scope string) *OAuth {
	return &OAuth{source: source, scope: scope}
}

// GetMetadata blocks until the source yields a valid token or ctx is done.
// CallInfo.Scopes, when set, replaces the configured scope; multiple scopes
// are joined with spaces.
func (o *OAuth) GetMetadata(ctx context.Context, info CallInfo) ([]Entry, error) {
	const op = "callcreds.OAuth"

	scope := o.scope
	if len(info.Scopes) > 0 {
		scope = strings.Join(info.Scopes, " ")
	}

	tok, err := o.source.Get(ctx, scope)
	if err != nil {
		return nil, autherr.Auth(op, err)
	}
	e, err := Bearer(tok.Type, tok.Value)
	if err != nil {
		return nil, autherr.Auth(op, err)
	}
	return []Entry{e}, nil
}

func (o *OAuth) RequireTransportSecurity() bool { return true }

// Scope returns the configured scope.
func (o *OAuth) Scope() string { return o.scope }

// Composite applies its members in construction order. All of them must
// succeed.
type Composite struct {
	members []CallCredential
}

// NewComposite returns a Composite over creds. A nil member is a
// ConfigError.
func NewComposite(creds ...CallCredential) (*Composite, error) {
	for i, c := range creds {
		if c == nil {
			return nil, autherr.Configf("callcreds.NewComposite", "member %d is nil", i)
		}
	}
	return &Composite{members: append([]CallCredential(nil), creds...)}, nil
}

// GetMetadata concatenates the members' entries. On the first failure it
// stops: later members are not invoked and no entries are returned.
func (c *Composite) GetMetadata(ctx context.Context, info CallInfo) ([]Entry, error) {
	var out []Entry
	for _, m := range c.members {
		entries, err := m.GetMetadata(ctx, info)
		if err != nil {
			return nil, autherr.AsAuth("callcreds.Composite", err)
		}
		out = append(out, entries...)
	}
	return out, nil
}

// RequireTransportSecurity is true when any member requires it.
func (c *Composite) RequireTransportSecurity() bool {
	for _, m := range c.members {
		if m.RequireTransportSecurity() {
			return true
		}
	}
	return false
}

// Members returns a copy of the member list.
func (c *Composite) Members() []CallCredential {
	return append([]CallCredential(nil), c.members...)
}

// PerRPC adapts c to grpc's PerRPCCredentials for use with
// grpc.WithPerRPCCredentials.
func PerRPC(c CallCredential) credentials.PerRPCCredentials {
	return perRPC{c}
}

type perRPC struct {
	cred CallCredential
}

func (p perRPC) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	info := CallInfo{}
	if ri, ok := credentials.RequestInfoFromContext(ctx); ok {
		info.Method = ri.Method
	}
	if len(uri) > 0 {
		info.Authority = uri[0]
	}
	entries, err := p.cred.GetMetadata(ctx, info)
	if err != nil {
		return nil, autherr.AsAuth("callcreds.PerRPC", err)
	}
	return ToMap(entries), nil
}

func (p perRPC) RequireTransportSecurity() bool { return p.cred.RequireTransportSecurity() }
