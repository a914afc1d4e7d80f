package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/config"
)

// Validator verifies bearer tokens against the identity provider's
// published key set and extracts the caller's identity.
type Validator struct {
	issuer    string
	audience  string
	tierClaim string
	clockSkew time.Duration

	keySet     jwk.Set
	revocation RevocationList
	logger     *zap.Logger
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*Validator)

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger *zap.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithKeySet overrides the JWKS-backed key set. Used by tests.
func WithKeySet(set jwk.Set) ValidatorOption {
	return func(v *Validator) {
		v.keySet = set
	}
}

// WithRevocationList enables revocation checking.
func WithRevocationList(list RevocationList) ValidatorOption {
	return func(v *Validator) {
		v.revocation = list
	}
}

// WithClockSkew sets the acceptable clock skew.
func WithClockSkew(skew time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.clockSkew = skew
	}
}

// NewValidator creates a validator from identity configuration. The
// JWKS endpoint is fetched lazily and cached with automatic refresh.
func NewValidator(ctx context.Context, cfg *config.IdentityConfig, opts ...ValidatorOption) (*Validator, error) {
	if cfg == nil || cfg.IssuerURL == "" {
		return nil, errors.New("identity issuerURL is required")
	}

	tierClaim := cfg.TierClaim
	if tierClaim == "" {
		tierClaim = "tier"
	}

	v := &Validator{
		issuer:    cfg.IssuerURL,
		audience:  cfg.Audience,
		tierClaim: tierClaim,
		clockSkew: 30 * time.Second,
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.keySet == nil {
		jwksURL := cfg.JWKSURL
		if jwksURL == "" {
			jwksURL = strings.TrimSuffix(cfg.IssuerURL, "/") + "/protocol/openid-connect/certs"
		}

		cache := jwk.NewCache(ctx)
		if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			return nil, fmt.Errorf("register jwks url: %w", err)
		}
		v.keySet = jwk.NewCachedSet(cache, jwksURL)
	}

	return v, nil
}

// Validate verifies the token signature and claims and returns the
// caller's identity. Revoked tokens are rejected even when otherwise
// valid.
func (v *Validator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		recordValidation("error")
		return nil, ErrMissingToken
	}

	parseOpts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithKeySet(v.keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(v.clockSkew),
	}
	if v.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse([]byte(token), parseOpts...)
	if err != nil {
		recordValidation("error")
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, ErrTokenExpired
		}
		v.logger.Debug("token validation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := v.buildIdentity(parsed)

	if v.revocation != nil {
		revoked, err := v.revocation.IsRevoked(ctx, revocationKey(identity))
		if err != nil {
			// Fail closed: an unreachable revocation store must not
			// let revoked tokens through.
			recordValidation("error")
			return nil, fmt.Errorf("revocation check: %w", err)
		}
		if revoked {
			recordValidation("revoked")
			return nil, ErrTokenRevoked
		}
	}

	recordValidation("ok")

	return identity, nil
}

// buildIdentity maps token claims onto an Identity.
func (v *Validator) buildIdentity(token jwt.Token) *Identity {
	claims := token.PrivateClaims()

	identity := &Identity{
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		ExpiresAt: token.Expiration(),
		TokenID:   token.JwtID(),
		Claims:    claims,
	}

	if tier, ok := claims[v.tierClaim].(string); ok {
		identity.Tier = tier
	}

	identity.Roles = extractRoles(claims)

	return identity
}

// extractRoles collects roles from a top-level roles claim and from
// the Keycloak realm_access structure.
func extractRoles(claims map[string]interface{}) []string {
	var roles []string

	if raw, ok := claims["roles"].([]interface{}); ok {
		roles = append(roles, toStrings(raw)...)
	}

	if realmAccess, ok := claims["realm_access"].(map[string]interface{}); ok {
		if raw, ok := realmAccess["roles"].([]interface{}); ok {
			roles = append(roles, toStrings(raw)...)
		}
	}

	return roles
}

func toStrings(raw []interface{}) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ExtractBearerToken pulls the bearer token from the Authorization
// header. Returns ErrMissingToken when absent or malformed.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}

	return header[len(prefix):], nil
}
