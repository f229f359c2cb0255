// Package contextx holds the typed context values shared by the channel,
// the interceptors and the verifier server.
package contextx

import (
	"context"
	"slices"
)

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
	groupKey
	scopesKey
)

// RequestIDHeader is the metadata key request IDs travel under.
const RequestIDHeader = "x-request-id"

// Identity is the caller a verifier accepted. The server's auth interceptor
// stores it; handlers read it with IdentityFromContext.
type Identity struct {
	Subject string
	// Issuer is empty for static tokens.
	Issuer string
	Scopes []string
	// Method names how the bearer was verified, e.g. "static" or "jwt".
	Method string
}

// HasScope reports whether s is among the identity's scopes.
func (id Identity) HasScope(s string) bool { return slices.Contains(id.Scopes, s) }

// WithIdentity returns a derived context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the Identity stored in ctx.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithRequestID returns a derived context carrying a request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithGroup records the policy group a call resolved to.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey, group)
}

// GroupFromContext returns the policy group in ctx, or "".
func GroupFromContext(ctx context.Context) string {
	g, _ := ctx.Value(groupKey).(string)
	return g
}

// WithScopes overrides the token scopes for calls made with ctx. It takes
// precedence over any policy group.
func WithScopes(ctx context.Context, scopes ...string) context.Context {
	return context.WithValue(ctx, scopesKey, slices.Clone(scopes))
}

// ScopesFromContext returns the per-call scope override, or nil.
func ScopesFromContext(ctx context.Context) []string {
	s, _ := ctx.Value(scopesKey).([]string)
	return s
}
