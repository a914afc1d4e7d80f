package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcgateway/svcgw/internal/config"
)

const testIssuer = "https://idp.example.com/realms/gateway"

type tokenSigner struct {
	privateKey jwk.Key
	publicSet  jwk.Set
}

func newTokenSigner(t *testing.T) *tokenSigner {
	t.Helper()

	rawKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privateKey, err := jwk.FromRaw(rawKey)
	require.NoError(t, err)
	require.NoError(t, privateKey.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, privateKey.Set(jwk.AlgorithmKey, jwa.RS256))

	publicKey, err := jwk.FromRaw(rawKey.Public())
	require.NoError(t, err)
	require.NoError(t, publicKey.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, publicKey.Set(jwk.AlgorithmKey, jwa.RS256))

	publicSet := jwk.NewSet()
	require.NoError(t, publicSet.AddKey(publicKey))

	return &tokenSigner{privateKey: privateKey, publicSet: publicSet}
}

// signToken builds and signs a token with sensible defaults that each
// test can override through claims.
func (s *tokenSigner) signToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	token := jwt.New()
	require.NoError(t, token.Set(jwt.SubjectKey, "alice"))
	require.NoError(t, token.Set(jwt.IssuerKey, testIssuer))
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))

	for key, value := range claims {
		require.NoError(t, token.Set(key, value))
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, s.privateKey))
	require.NoError(t, err)

	return string(signed)
}

func newTestValidator(t *testing.T, signer *tokenSigner, opts ...ValidatorOption) *Validator {
	t.Helper()

	opts = append([]ValidatorOption{WithKeySet(signer.publicSet)}, opts...)

	v, err := NewValidator(context.Background(), &config.IdentityConfig{
		IssuerURL: testIssuer,
	}, opts...)
	require.NoError(t, err)

	return v
}

func TestValidator_ValidToken(t *testing.T) {
	signer := newTokenSigner(t)
	v := newTestValidator(t, signer)

	token := signer.signToken(t, map[string]interface{}{
		"tier":  "premium",
		"roles": []string{"user", "editor"},
		"jti":   "token-1",
	})

	identity, err := v.Validate(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, testIssuer, identity.Issuer)
	assert.Equal(t, "premium", identity.Tier)
	assert.Equal(t, []string{"user", "editor"}, identity.Roles)
	assert.Equal(t, "token-1", identity.TokenID)
	assert.False(t, identity.IsExpired())
}

func TestValidator_KeycloakRealmRoles(t *testing.T) {
	signer := newTokenSigner(t)
	v := newTestValidator(t, signer)

	token := signer.signToken(t, map[string]interface{}{
		"realm_access": map[string]interface{}{
			"roles": []string{"admin"},
		},
	})

	identity, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, identity.HasRole("admin"))
}

func TestValidator_MissingToken(t *testing.T) {
	signer := newTokenSigner(t)
	v := newTestValidator(t, signer)

	_, err := v.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestValidator_ExpiredToken(t *testing.T) {
	signer := newTokenSigner(t)
	v := newTestValidator(t, signer, WithClockSkew(0))

	token := signer.signToken(t, map[string]interface{}{
		"exp": time.Now().Add(-time.Hour),
	})

	_, err := v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidator_WrongIssuer(t *testing.T) {
	signer := newTokenSigner(t)
	v := newTestValidator(t, signer)

	token := signer.signToken(t, map[string]interface{}{
		"iss": "https://rogue.example.com",
	})

	_, err := v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_WrongSignature(t *testing.T) {
	signer := newTokenSigner(t)
	otherSigner := newTokenSigner(t)
	v := newTestValidator(t, signer)

	token := otherSigner.signToken(t, nil)

	_, err := v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_AudienceEnforced(t *testing.T) {
	signer := newTokenSigner(t)

	v, err := NewValidator(context.Background(), &config.IdentityConfig{
		IssuerURL: testIssuer,
		Audience:  "gateway",
	}, WithKeySet(signer.publicSet))
	require.NoError(t, err)

	good := signer.signToken(t, map[string]interface{}{"aud": "gateway"})
	_, err = v.Validate(context.Background(), good)
	assert.NoError(t, err)

	bad := signer.signToken(t, map[string]interface{}{"aud": "other"})
	_, err = v.Validate(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_RevokedToken(t *testing.T) {
	signer := newTokenSigner(t)
	revocation := NewMemoryRevocationList()
	v := newTestValidator(t, signer, WithRevocationList(revocation))

	token := signer.signToken(t, map[string]interface{}{"jti": "token-9"})

	identity, err := v.Validate(context.Background(), token)
	require.NoError(t, err)

	require.NoError(t, revocation.Revoke(context.Background(),
		RevocationKeyForIdentity(identity), time.Hour))

	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestValidator_JWKSEndpoint(t *testing.T) {
	signer := newTokenSigner(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(signer.publicSet))
	}))
	defer srv.Close()

	v, err := NewValidator(context.Background(), &config.IdentityConfig{
		IssuerURL: testIssuer,
		JWKSURL:   srv.URL,
	})
	require.NoError(t, err)

	token := signer.signToken(t, nil)

	identity, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"case insensitive scheme", "bearer abc", "abc", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc", "", true},
		{"scheme only", "Bearer ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			token, err := ExtractBearerToken(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestIdentity_Helpers(t *testing.T) {
	identity := &Identity{
		Subject: "alice",
		Roles:   []string{"user"},
	}

	assert.True(t, identity.HasRole("user"))
	assert.False(t, identity.HasRole("admin"))
	assert.True(t, identity.HasAnyRole("admin", "user"))
	assert.True(t, identity.OwnsResource("alice"))
	assert.False(t, identity.OwnsResource("bob"))

	admin := &Identity{Subject: "root", Roles: []string{"admin"}}
	assert.True(t, admin.OwnsResource("bob"), "admins override ownership")
}
