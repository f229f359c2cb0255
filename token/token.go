// Package token acquires, caches and refreshes bearer tokens per scope.
//
// A Provider hands out a cached token until it comes within the refresh
// skew of its expiry. Past that point the next caller starts a refresh
// against the external authority; every concurrent caller for the same scope
// waits for that single refresh instead of starting its own. A caller whose
// context ends stops waiting without disturbing the refresh or the other
// waiters.
package token

import (
	"context"
	"time"
)

// DefaultType is used when an authority does not name a token type.
const DefaultType = "Bearer"

// Token is an issued access token.
type Token struct {
	Value string
	// Type is the authorization scheme, "Bearer" unless the authority says
	// otherwise.
	Type string
	// Expiry is when the authority stops accepting the token. The zero
	// value means it does not expire.
	Expiry time.Time
}

// FreshAt reports whether t may still be handed out at now given skew:
// it must be non-empty and now must be before Expiry - skew.
func (t Token) FreshAt(now time.Time, skew time.Duration) bool {
	if t.Value == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Before(t.Expiry.Add(-skew))
}

// String never includes the token value.
func (t Token) String() string {
	if t.Expiry.IsZero() {
		return t.Type + " token (no expiry)"
	}
	return t.Type + " token expiring " + t.Expiry.UTC().Format(time.RFC3339)
}

// AcquireFunc fetches a new token for scope from an external authority. It
// is invoked on a context detached from any caller and bounded by the
// provider's refresh timeout. Scope rejections should be returned as
// autherr ScopeErrors.
type AcquireFunc func(ctx context.Context, scope string) (Token, error)
