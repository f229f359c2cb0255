package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/Keksclan/goRawrCreds/autherr"
	"github.com/Keksclan/goRawrCreds/breaker"
	"github.com/Keksclan/goRawrCreds/cache"
	"github.com/Keksclan/goRawrCreds/metrics"
	"github.com/Keksclan/goRawrCreds/tracing"
)

const opGet = "token.Get"

// Provider caches one token per scope and coalesces refreshes. It is safe
// for concurrent use.
type Provider struct {
	acquire AcquireFunc
	cfg     config

	mu     sync.RWMutex
	tokens map[string]Token

	flights singleflight.Group
}

// New returns a Provider around acquire.
func New(acquire AcquireFunc, opts ...Option) (*Provider, error) {
	const op = "token.New"
	if acquire == nil {
		return nil, autherr.Configf(op, "nil AcquireFunc")
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.skew < 0 {
		return nil, autherr.Configf(op, "negative refresh skew %s", cfg.skew)
	}
	if cfg.store != nil && cfg.storeNamespace == "" {
		return nil, autherr.Configf(op, "a token store needs a namespace naming the identity")
	}
	if cfg.refreshTimeout <= 0 {
		return nil, autherr.Configf(op, "refresh timeout must be positive, got %s", cfg.refreshTimeout)
	}
	if cfg.log.GetSink() == nil {
		cfg.log = logr.Discard()
	}
	cfg.log = cfg.log.WithName("token")

	return &Provider{
		acquire: acquire,
		cfg:     cfg,
		tokens:  make(map[string]Token),
	}, nil
}

// Get returns a token for scope that is fresh at the time of the call.
//
// A cached fresh token is returned without blocking. Otherwise the caller
// joins the refresh in flight for scope, starting one if there is none.
// When ctx ends first, Get returns an AcquisitionError (Timeout set for a
// deadline) and the refresh carries on for the other waiters.
func (p *Provider) Get(ctx context.Context, scope string) (Token, error) {
	if tok, ok := p.cached(scope); ok {
		p.cfg.metrics.ObserveCache(scope, metrics.CacheHit)
		return tok, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := p.flights.DoChan(scope, func() (tok any, err error) {
		defer func() {
			if r := recover(); r != nil {
				p.cfg.log.Error(nil, "token refresh panicked", "scope", scope, "panic", fmt.Sprint(r))
				tok, err = Token{}, autherr.Acquisition(opGet, scope, fmt.Errorf("refresh panicked: %v", r))
			}
		}()
		return p.refresh(detached, scope)
	})

	select {
	case <-ctx.Done():
		p.cfg.log.V(1).Info("caller stopped waiting for refresh", "scope", scope, "reason", ctx.Err().Error())
		return Token{}, autherr.FromContext(opGet, scope, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

// Invalidate drops the cached token for scope, e.g. after a server rejected
// it. The next Get refreshes.
func (p *Provider) Invalidate(ctx context.Context, scope string) {
	p.mu.Lock()
	delete(p.tokens, scope)
	p.mu.Unlock()

	if p.cfg.store != nil {
		_ = p.cfg.store.Delete(ctx, p.storeKey(scope))
	}
}

// cached returns the in-memory token for scope if it is fresh.
func (p *Provider) cached(scope string) (Token, bool) {
	p.mu.RLock()
	tok, ok := p.tokens[scope]
	p.mu.RUnlock()
	if !ok {
		return Token{}, false
	}
	if !tok.FreshAt(p.cfg.now(), p.cfg.skew) {
		p.cfg.metrics.ObserveCache(scope, metrics.CacheStale)
		return Token{}, false
	}
	return tok, true
}

// refresh runs once per flight. It re-checks the cache because a flight that
// finished between the caller's lookup and DoChan may already have stored a
// fresh token.
func (p *Provider) refresh(ctx context.Context, scope string) (Token, error) {
	if tok, ok := p.cached(scope); ok {
		return tok, nil
	}
	p.cfg.metrics.ObserveCache(scope, metrics.CacheMiss)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.refreshTimeout)
	defer cancel()

	if tok, ok := p.fromStore(ctx, scope); ok {
		return tok, nil
	}

	if p.cfg.limiter != nil {
		if err := p.cfg.limiter.Wait(ctx); err != nil {
			return Token{}, autherr.Acquisition(opGet, scope, err)
		}
	}

	finish := func(error) {}
	if p.cfg.tracing {
		ctx, finish = tracing.StartAcquisition(ctx, p.cfg.tp, scope)
	}

	log := p.cfg.log.WithValues("scope", scope)
	log.V(1).Info("refreshing token")

	start := time.Now()
	tok, err := p.callAuthority(ctx, scope)
	p.cfg.metrics.ObserveAcquisition(scope, time.Since(start), err)
	finish(err)

	if err != nil {
		log.Error(err, "token refresh failed")
		return Token{}, err
	}

	now := p.cfg.now()
	if !tok.Expiry.IsZero() && !now.Before(tok.Expiry) {
		err := autherr.Acquisition(opGet, scope, errors.New("authority returned an expired token"))
		log.Error(err, "token refresh failed", "expiry", tok.Expiry)
		return Token{}, err
	}
	if tok.FreshAt(now, p.cfg.skew) {
		p.put(ctx, scope, tok)
		log.V(1).Info("token refreshed", "expiry", tok.Expiry)
	} else {
		log.Info("authority issued a token inside the refresh skew, not caching", "expiry", tok.Expiry, "skew", p.cfg.skew)
	}
	return tok, nil
}

func (p *Provider) callAuthority(ctx context.Context, scope string) (Token, error) {
	var tok Token
	call := func() error {
		var err error
		tok, err = p.acquire(ctx, scope)
		return err
	}

	var err error
	if p.cfg.breaker != nil {
		err = p.cfg.breaker.Do(call, countsAgainstAuthority)
	} else {
		err = call()
	}
	if err != nil {
		return Token{}, classify(ctx, scope, err)
	}

	if tok.Value == "" {
		return Token{}, autherr.Acquisition(opGet, scope, errors.New("authority returned an empty token"))
	}
	if tok.Type == "" {
		tok.Type = DefaultType
	}
	return tok, nil
}

// countsAgainstAuthority reports whether err says something about the
// authority's health. Scope and configuration rejections do not.
func countsAgainstAuthority(err error) bool {
	return !errors.Is(err, autherr.ErrScope) && !errors.Is(err, autherr.ErrConfig)
}

// classify keeps autherr kinds from the acquirer and turns everything else
// into an AcquisitionError. Breaker rejection and refresh timeouts included.
func classify(ctx context.Context, scope string, err error) error {
	if autherr.KindOf(err) != autherr.KindUnknown {
		return err
	}
	e := autherr.Acquisition(opGet, scope, err)
	if errors.Is(err, breaker.ErrOpen) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.Timeout = true
		e.Err = fmt.Errorf("refresh timed out: %w", err)
	}
	return e
}

func (p *Provider) put(ctx context.Context, scope string, tok Token) {
	p.mu.Lock()
	p.tokens[scope] = tok
	p.mu.Unlock()

	if p.cfg.store != nil {
		err := p.cfg.store.Save(ctx, p.storeKey(scope), cache.Entry{Value: tok.Value, Type: tok.Type, Expiry: tok.Expiry})
		if err != nil {
			p.cfg.log.V(1).Info("token store save failed", "scope", scope, "error", err.Error())
		}
		p.cfg.metrics.ObserveCache(scope, metrics.CacheStore)
	}
}

func (p *Provider) fromStore(ctx context.Context, scope string) (Token, bool) {
	if p.cfg.store == nil {
		return Token{}, false
	}
	e, ok, err := p.cfg.store.Load(ctx, p.storeKey(scope))
	if err != nil || !ok {
		return Token{}, false
	}
	tok := Token{Value: e.Value, Type: e.Type, Expiry: e.Expiry}
	if !tok.FreshAt(p.cfg.now(), p.cfg.skew) {
		return Token{}, false
	}

	p.mu.Lock()
	p.tokens[scope] = tok
	p.mu.Unlock()
	p.cfg.metrics.ObserveCache(scope, metrics.CacheHit)
	p.cfg.log.V(1).Info("token loaded from store", "scope", scope)
	return tok, true
}

func (p *Provider) storeKey(scope string) string {
	return p.cfg.storeNamespace + "|" + scope
}
