package contextx

import (
	"slices"
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	id := Identity{Subject: "svc-a@rawr", Issuer: "svc-a@rawr", Scopes: []string{"read"}, Method: "jwt"}
	ctx := WithIdentity(t.Context(), id)

	got, ok := IdentityFromContext(ctx)
	if !ok {
		t.Fatal("expected identity in context")
	}
	if got.Subject != id.Subject || got.Method != "jwt" {
		t.Fatalf("got %+v, want %+v", got, id)
	}
	if !got.HasScope("read") || got.HasScope("write") {
		t.Fatalf("unexpected scope check result for %v", got.Scopes)
	}

	if _, ok := IdentityFromContext(t.Context()); ok {
		t.Fatal("expected no identity in empty context")
	}
}

func TestRequestIDAndGroup(t *testing.T) {
	ctx := WithGroup(WithRequestID(t.Context(), "req-1"), "admin")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("request id: got %q", got)
	}
	if got := GroupFromContext(ctx); got != "admin" {
		t.Fatalf("group: got %q", got)
	}
	if RequestIDFromContext(t.Context()) != "" || GroupFromContext(t.Context()) != "" {
		t.Fatal("expected empty values in empty context")
	}
}

func TestScopesAreCopied(t *testing.T) {
	in := []string{"read", "write"}
	ctx := WithScopes(t.Context(), in...)
	in[0] = "mutated"

	if got := ScopesFromContext(ctx); !slices.Equal(got, []string{"read", "write"}) {
		t.Fatalf("got %v", got)
	}
	if ScopesFromContext(t.Context()) != nil {
		t.Fatal("expected nil scopes in empty context")
	}
}
