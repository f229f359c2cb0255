// Package policy maps full gRPC method names to per-method credential
// policies: which token scopes a call needs and how long it may wait for a
// token.
package policy

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Policy holds the credential settings for a matched method group.
type Policy struct {
	// Scopes replaces the scope configured on OAuth call credentials.
	Scopes []string
	// AcquireTimeout bounds how long a call waits for credentials. Zero
	// leaves the call's own deadline in charge.
	AcquireTimeout time.Duration
}

// matchKind distinguishes the three matching strategies. Lower values win.
type matchKind int

const (
	kindExact matchKind = iota
	kindPrefix
	kindRegex
)

type rule struct {
	kind    matchKind
	pattern string
	re      *regexp.Regexp
}

// matchLen returns how much of fullMethod r covers, or -1 when r does not
// apply. Longer matches of the same kind are more specific.
func (r rule) matchLen(fullMethod string) int {
	switch r.kind {
	case kindExact:
		if fullMethod == r.pattern {
			return len(fullMethod)
		}
	case kindPrefix:
		if strings.HasPrefix(fullMethod, r.pattern) {
			return len(r.pattern)
		}
	case kindRegex:
		if loc := r.re.FindStringIndex(fullMethod); loc != nil {
			return loc[1] - loc[0]
		}
	}
	return -1
}

// GroupBuilder constructs a named method group with matching rules and a
// policy.
type GroupBuilder struct {
	name   string
	rules  []rule
	policy Policy
	err    error
}

// Group starts building a new method group.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Exact matches fullMethod exactly.
func (g *GroupBuilder) Exact(fullMethod string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, pattern: fullMethod})
	return g
}

// Prefix matches methods starting with prefix, e.g. "/billing.v1.".
func (g *GroupBuilder) Prefix(prefix string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: prefix})
	return g
}

// Regex matches methods against pattern. A pattern that does not compile
// is reported by NewResolver.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	re, err := regexp.Compile(pattern)
	if err != nil {
		if g.err == nil {
			g.err = fmt.Errorf("policy: group %q: %w", g.name, err)
		}
		return g
	}
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: re})
	return g
}

// Policy attaches p to the group.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	p.Scopes = slices.Clone(p.Scopes)
	g.policy = p
	return g
}

// Name returns the group name.
func (g *GroupBuilder) Name() string { return g.name }
