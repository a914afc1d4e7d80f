// Package authz enforces role and ownership rules on proxied paths.
package authz

import (
	"errors"
	"strings"

	"github.com/svcgateway/svcgw/internal/auth"
)

// Authorization errors.
var (
	// ErrRoleRequired indicates the identity lacks a required role.
	ErrRoleRequired = errors.New("required role missing")

	// ErrNotOwner indicates the identity does not own the resource.
	ErrNotOwner = errors.New("resource owned by another subject")
)

// Rule binds a path prefix to the roles allowed under it. An empty
// role list means any authenticated identity.
type Rule struct {
	Prefix string
	Roles  []string
}

// Guard evaluates path rules against an identity. The longest
// matching prefix wins so nested paths can tighten access.
type Guard struct {
	rules []Rule

	// ownershipPrefix, when set, requires the first path segment after
	// the prefix to equal the identity's subject. Admins bypass it.
	ownershipPrefix string
}

// Option is a functional option for the guard.
type Option func(*Guard)

// WithOwnership enables subject-ownership checking under the prefix.
func WithOwnership(prefix string) Option {
	return func(g *Guard) {
		g.ownershipPrefix = strings.TrimSuffix(prefix, "/")
	}
}

// NewGuard creates a guard from rules.
func NewGuard(rules []Rule, opts ...Option) *Guard {
	g := &Guard{rules: rules}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefaultGuard returns the gateway's standard path rules: the admin
// area requires the admin role, the user area requires user or admin,
// and user resources are owner-scoped.
func DefaultGuard() *Guard {
	return NewGuard([]Rule{
		{Prefix: "/api/admin", Roles: []string{"admin"}},
		{Prefix: "/api/user", Roles: []string{"user", "admin"}},
	}, WithOwnership("/api/user"))
}

// Authorize checks the identity against the rules for the path.
func (g *Guard) Authorize(identity *auth.Identity, path string) error {
	rule := g.match(path)
	if rule != nil && len(rule.Roles) > 0 && !identity.HasAnyRole(rule.Roles...) {
		return ErrRoleRequired
	}

	if g.ownershipPrefix != "" {
		if owner, ok := ownerSegment(path, g.ownershipPrefix); ok && !identity.OwnsResource(owner) {
			return ErrNotOwner
		}
	}

	return nil
}

// match returns the longest-prefix rule covering the path, or nil.
func (g *Guard) match(path string) *Rule {
	var best *Rule
	for i := range g.rules {
		rule := &g.rules[i]
		if !coveredBy(path, rule.Prefix) {
			continue
		}
		if best == nil || len(rule.Prefix) > len(best.Prefix) {
			best = rule
		}
	}
	return best
}

// ownerSegment extracts the path segment following the prefix, which
// names the resource owner. Returns false when the path has no owner
// segment.
func ownerSegment(path, prefix string) (string, bool) {
	if !coveredBy(path, prefix) || len(path) <= len(prefix)+1 {
		return "", false
	}

	rest := strings.TrimPrefix(path[len(prefix):], "/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// coveredBy reports whether path falls under prefix at a segment boundary.
func coveredBy(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
