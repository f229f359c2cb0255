package gorawrcreds

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/callcreds"
	"github.com/Keksclan/goRawrCreds/composite"
	"github.com/Keksclan/goRawrCreds/contextx"
	"github.com/Keksclan/goRawrCreds/interceptors"
	"github.com/Keksclan/goRawrCreds/internal/core"
	"github.com/Keksclan/goRawrCreds/metrics"
	"github.com/Keksclan/goRawrCreds/policy"
	"github.com/Keksclan/goRawrCreds/security"
	"github.com/Keksclan/goRawrCreds/tlscreds"
	"github.com/Keksclan/goRawrCreds/tracing"
)

// Channel is a gRPC client connection with credentials bound to it. It
// implements grpc.ClientConnInterface, so generated clients accept it.
type Channel struct {
	target    string
	authority string
	calls     []callcreds.CallCredential
	resolver  *policy.Resolver
	log       logr.Logger
	metrics   *metrics.Metrics
	closers   []io.Closer

	conn *grpc.ClientConn

	state  atomic.Int32
	secCtx atomic.Pointer[tlscreds.SecurityContext]

	closeOnce sync.Once
	closeErr  error
}

var _ grpc.ClientConnInterface = (*Channel)(nil)

// NewChannel binds cred to target. The composite is validated against the
// target first: bearer-style call credentials without a transport
// credential are only accepted for targets the classifier knows as secure.
// The transport credential is applied once here and observes every
// handshake. Failures are ConfigErrors and leave nothing open.
func NewChannel(target string, cred *composite.Credential, opts ...Option) (*Channel, error) {
	const op = "gorawrcreds.NewChannel"

	if cred == nil {
		return nil, autherr.Configf(op, "nil credential")
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log.GetSink() == nil {
		cfg.log = logr.Discard()
	}

	if err := cred.Validate(target, cfg.classifier); err != nil {
		return nil, err
	}

	ch := &Channel{
		target:    target,
		authority: authorityOf(target),
		calls:     cred.Calls(),
		resolver:  cfg.resolver,
		log:       cfg.log.WithName("channel").WithValues("target", target),
		metrics:   cfg.metrics,
		closers:   slices.Clone(cfg.closers),
	}

	var transport grpc.DialOption
	if tc := cred.Transport(); tc != nil {
		transport = grpc.WithTransportCredentials(tc.TransportCredentials(target, tlscreds.WithObserver(ch.observe)))
	} else {
		transport = grpc.WithTransportCredentials(insecure.NewCredentials())
		if cred.RequireTransportSecurity() {
			ch.log.Info("sending bearer credentials without TLS to a known-secure target")
		}
	}

	attach := ch.attach
	if cfg.recovery {
		attach = interceptors.RecoverAttach(ch.log, attach)
	}
	cfg.middlewares.Add(OrderCredentials, interceptors.CredentialsUnary(attach), interceptors.CredentialsStream(attach))
	if cfg.requestID {
		cfg.middlewares.Add(OrderRequestID, interceptors.RequestIDUnaryClient(), interceptors.RequestIDStreamClient())
	}
	if cfg.tracing != nil {
		cfg.middlewares.Add(OrderTracing, tracing.UnaryClientInterceptor(cfg.tracing), tracing.StreamClientInterceptor(cfg.tracing))
	}

	unary, stream := cfg.middlewares.Build()
	dialOpts := append([]grpc.DialOption(nil), cfg.dialOptions...)
	dialOpts = append(dialOpts, transport)
	dialOpts = append(dialOpts, core.BuildDialOptions(unary, stream, interceptors.ChainUnaryClient, interceptors.ChainStreamClient)...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, autherr.Config(op, err)
	}
	ch.conn = conn

	ch.state.Store(int32(StateBound))
	ch.metrics.ChannelTransition("", StateBound.String())
	ch.log.V(1).Info("channel bound", "tls", cred.Transport() != nil, "callCredentials", len(ch.calls))
	return ch, nil
}

// Invoke performs a unary RPC. It fails with autherr.ErrChannelClosed once
// the channel is closed.
func (c *Channel) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	if c.State() != StateBound {
		return autherr.ErrChannelClosed
	}
	return c.conn.Invoke(ctx, method, args, reply, opts...)
}

// NewStream opens a stream. It fails with autherr.ErrChannelClosed once the
// channel is closed.
func (c *Channel) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	if c.State() != StateBound {
		return nil, autherr.ErrChannelClosed
	}
	return c.conn.NewStream(ctx, desc, method, opts...)
}

// Connect starts connecting without waiting for a call.
func (c *Channel) Connect() {
	if c.State() == StateBound {
		c.conn.Connect()
	}
}

// Close releases the connection, forgets the security context and closes
// every registered closer. Calling it again returns the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		c.metrics.ChannelTransition(prev.String(), StateClosed.String())
		c.secCtx.Store(nil)

		var errs []error
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
		c.log.V(1).Info("channel closed")
	})
	return c.closeErr
}

// State returns the current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Target returns the dial target.
func (c *Channel) Target() string { return c.target }

// SecurityContext returns the result of the latest completed handshake, or
// nil before the first one, without TLS, or after Close.
func (c *Channel) SecurityContext() *tlscreds.SecurityContext { return c.secCtx.Load() }

func (c *Channel) observe(sc *tlscreds.SecurityContext) {
	if c.State() == StateClosed {
		return
	}
	c.secCtx.Store(sc)
	if c.State() == StateClosed {
		c.secCtx.Store(nil)
		return
	}
	c.metrics.ObserveHandshake(sc.Version())
	c.log.V(1).Info("handshake completed", "version", sc.Version(), "cipher", sc.Cipher(), "peer", sc.PeerCommonName, "verified", sc.Verified)
}

// attach runs every call credential for method and merges their entries
// into the outgoing metadata. The first failure aborts the call.
func (c *Channel) attach(ctx context.Context, method string) (context.Context, error) {
	const op = "gorawrcreds.attach"

	if c.State() != StateBound {
		return ctx, autherr.ErrChannelClosed
	}

	group, pol, matched := c.resolver.Resolve(method)
	if matched {
		ctx = contextx.WithGroup(ctx, group)
	}
	scopes := contextx.ScopesFromContext(ctx)
	if len(scopes) == 0 {
		scopes = pol.Scopes
	}

	acquireCtx := ctx
	if pol.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, pol.AcquireTimeout)
		defer cancel()
	}

	info := callcreds.CallInfo{Method: method, Authority: c.authority, Scopes: scopes}
	var entries []callcreds.Entry
	for _, cc := range c.calls {
		e, err := cc.GetMetadata(acquireCtx, info)
		if err != nil {
			err = autherr.AsAuth(op, err)
			c.metrics.ObserveCallFailure(method, err)
			c.log.V(1).Info("call aborted: credentials unavailable", "method", method, "group", group, "error", err.Error())
			return ctx, err
		}
		entries = append(entries, e...)
	}
	return callcreds.AppendToOutgoing(ctx, entries), nil
}

// authorityOf derives the :authority of target, or "" when it cannot.
func authorityOf(target string) string {
	t, ok := security.ParseTarget(target)
	if !ok || t.Unix {
		return ""
	}
	if t.Port == "" {
		return t.Host
	}
	return net.JoinHostPort(t.Host, t.Port)
}
