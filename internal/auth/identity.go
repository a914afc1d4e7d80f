// Package auth provides token validation and identity extraction.
package auth

import (
	"context"
	"time"
)

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier for the caller.
	Subject string `json:"sub"`

	// Issuer is the token issuer.
	Issuer string `json:"iss,omitempty"`

	// Tier is the caller's rate-limit tier claim value.
	Tier string `json:"tier,omitempty"`

	// Roles contains the roles assigned to the caller.
	Roles []string `json:"roles,omitempty"`

	// ExpiresAt is when the token expires.
	ExpiresAt time.Time `json:"exp,omitempty"`

	// TokenID is the token's jti claim, used for revocation.
	TokenID string `json:"jti,omitempty"`

	// Claims contains the remaining token claims.
	Claims map[string]interface{} `json:"claims,omitempty"`
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsExpired reports whether the identity's token has expired.
func (i *Identity) IsExpired() bool {
	if i.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(i.ExpiresAt)
}

// OwnsResource reports whether the identity owns a resource keyed by
// subject, or holds the admin role which overrides ownership.
func (i *Identity) OwnsResource(ownerSubject string) bool {
	if i.HasRole("admin") {
		return true
	}
	return i.Subject != "" && i.Subject == ownerSubject
}

type contextKey struct{}

// ContextWithIdentity stores the identity in the context.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext retrieves the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*Identity)
	return identity, ok
}
