package policy

import (
	"errors"
	"slices"

	"github.com/Keksclan/goRawrCreds/autherr"
)

// Resolver resolves a full method name to its best-matching group.
type Resolver struct {
	groups []*GroupBuilder
}

// NewResolver creates a Resolver. Groups with invalid regex rules or a
// missing name make it fail with a ConfigError.
func NewResolver(groups ...*GroupBuilder) (*Resolver, error) {
	var errs []error
	for _, g := range groups {
		if g == nil {
			errs = append(errs, errors.New("policy: nil group"))
			continue
		}
		if g.name == "" {
			errs = append(errs, errors.New("policy: group without name"))
		}
		if g.err != nil {
			errs = append(errs, g.err)
		}
	}
	if len(errs) > 0 {
		return nil, autherr.Config("policy.NewResolver", errors.Join(errs...))
	}
	return &Resolver{groups: slices.Clone(groups)}, nil
}

// Resolve finds the best-matching group for fullMethod.
//
//   - Exact beats prefix, which beats regex.
//   - Among matches of the same kind the longer match wins.
//   - Ties go to the group registered first.
//
// A nil Resolver matches nothing.
func (res *Resolver) Resolve(fullMethod string) (group string, pol Policy, ok bool) {
	if res == nil {
		return "", Policy{}, false
	}

	bestKind := matchKind(-1)
	bestLen := -1
	for _, g := range res.groups {
		for _, r := range g.rules {
			mLen := r.matchLen(fullMethod)
			if mLen < 0 {
				continue
			}
			if bestKind < 0 || r.kind < bestKind || (r.kind == bestKind && mLen > bestLen) {
				bestKind = r.kind
				bestLen = mLen
				group = g.name
				pol = g.policy
				ok = true
			}
		}
	}
	pol.Scopes = slices.Clone(pol.Scopes)
	return group, pol, ok
}
