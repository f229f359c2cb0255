package policy

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/Keksclan/goRawrCreds/autherr"
)

func mustResolver(t *testing.T, groups ...*GroupBuilder) *Resolver {
	t.Helper()
	r, err := NewResolver(groups...)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestResolve_ExactMatchCarriesScopes(t *testing.T) {
	r := mustResolver(t,
		Group("admin").
			Exact("/admin.Service/Delete").
			Policy(Policy{Scopes: []string{"admin"}, AcquireTimeout: 2 * time.Second}),
	)

	name, pol, ok := r.Resolve("/admin.Service/Delete")
	if !ok || name != "admin" {
		t.Fatalf("got (%q, %v), want admin match", name, ok)
	}
	if !slices.Equal(pol.Scopes, []string{"admin"}) {
		t.Fatalf("got scopes %v", pol.Scopes)
	}
	if pol.AcquireTimeout != 2*time.Second {
		t.Fatalf("got timeout %v", pol.AcquireTimeout)
	}
}

func TestResolve_Priority(t *testing.T) {
	r := mustResolver(t,
		Group("regex").Regex(`/svc\.Service/`).Policy(Policy{AcquireTimeout: 1 * time.Second}),
		Group("short-prefix").Prefix("/svc.").Policy(Policy{AcquireTimeout: 2 * time.Second}),
		Group("long-prefix").Prefix("/svc.Service/").Policy(Policy{AcquireTimeout: 3 * time.Second}),
		Group("exact").Exact("/svc.Service/Get").Policy(Policy{AcquireTimeout: 4 * time.Second}),
	)

	cases := map[string]string{
		"/svc.Service/Get":  "exact",
		"/svc.Service/List": "long-prefix",
		"/svc.Other/List":   "short-prefix",
	}
	for method, want := range cases {
		name, _, ok := r.Resolve(method)
		if !ok || name != want {
			t.Errorf("Resolve(%q) = %q, want %q", method, name, want)
		}
	}
}

func TestResolve_RegexOnly(t *testing.T) {
	r := mustResolver(t, Group("health").Regex(`/grpc\.health\.`).Policy(Policy{}))

	if _, _, ok := r.Resolve("/grpc.health.v1.Health/Check"); !ok {
		t.Fatal("expected a regex match")
	}
	if _, _, ok := r.Resolve("/other.Service/Get"); ok {
		t.Fatal("expected no match")
	}
}

func TestResolve_FirstRegisteredWinsTies(t *testing.T) {
	r := mustResolver(t,
		Group("first").Exact("/svc.Service/Get").Policy(Policy{Scopes: []string{"one"}}),
		Group("second").Exact("/svc.Service/Get").Policy(Policy{Scopes: []string{"two"}}),
	)

	name, pol, _ := r.Resolve("/svc.Service/Get")
	if name != "first" || pol.Scopes[0] != "one" {
		t.Fatalf("first-registered group should win: got %q %v", name, pol.Scopes)
	}
}

func TestResolve_ReturnsCopies(t *testing.T) {
	r := mustResolver(t, Group("g").Prefix("/").Policy(Policy{Scopes: []string{"read"}}))

	_, pol, _ := r.Resolve("/a/b")
	pol.Scopes[0] = "mutated"

	_, pol, _ = r.Resolve("/a/b")
	if pol.Scopes[0] != "read" {
		t.Fatalf("resolver state was mutated: %v", pol.Scopes)
	}
}

func TestNilResolverMatchesNothing(t *testing.T) {
	var r *Resolver
	if _, _, ok := r.Resolve("/svc/M"); ok {
		t.Fatal("expected nil resolver to match nothing")
	}
}

func TestNewResolverRejectsBadGroups(t *testing.T) {
	_, err := NewResolver(Group("bad").Regex(`(`))
	if !errors.Is(err, autherr.ErrConfig) {
		t.Fatalf("expected ConfigError for invalid regex, got %v", err)
	}
	_, err = NewResolver(Group("").Prefix("/"))
	if !errors.Is(err, autherr.ErrConfig) {
		t.Fatalf("expected ConfigError for unnamed group, got %v", err)
	}
}
