package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList tracks tokens that were invalidated before expiry.
type RevocationList interface {
	// Revoke marks a token key as revoked until its natural expiry.
	Revoke(ctx context.Context, key string, until time.Duration) error

	// IsRevoked reports whether the token key has been revoked.
	IsRevoked(ctx context.Context, key string) (bool, error)
}

// revocationKey derives the revocation store key for an identity.
// Tokens carrying a jti are keyed by it; otherwise the subject and
// expiry form a stable stand-in.
func revocationKey(identity *Identity) string {
	if identity.TokenID != "" {
		return identity.TokenID
	}
	sum := sha256.Sum256([]byte(identity.Subject + identity.ExpiresAt.UTC().String()))
	return hex.EncodeToString(sum[:16])
}

// RevocationKeyForIdentity exposes the revocation key derivation for
// handlers that revoke the caller's own token.
func RevocationKeyForIdentity(identity *Identity) string {
	return revocationKey(identity)
}

// RedisRevocationList stores revoked token keys in Redis so all
// gateway replicas observe a revocation immediately.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
}

// NewRedisRevocationList creates a Redis-backed revocation list.
func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = "revoked:"
	}
	return &RedisRevocationList{client: client, prefix: prefix}
}

// Revoke implements RevocationList. The entry expires together with
// the token so the list never grows past the set of live tokens.
func (l *RedisRevocationList) Revoke(ctx context.Context, key string, until time.Duration) error {
	if until <= 0 {
		until = time.Minute
	}
	if err := l.client.Set(ctx, l.prefix+key, "1", until).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationList.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, key string) (bool, error) {
	err := l.client.Get(ctx, l.prefix+key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return true, nil
}

// MemoryRevocationList is a per-process revocation list.
type MemoryRevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryRevocationList creates an in-memory revocation list.
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		entries: make(map[string]time.Time),
	}
}

// Revoke implements RevocationList.
func (l *MemoryRevocationList) Revoke(_ context.Context, key string, until time.Duration) error {
	if until <= 0 {
		until = time.Minute
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = time.Now().Add(until)
	return nil
}

// IsRevoked implements RevocationList.
func (l *MemoryRevocationList) IsRevoked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, ok := l.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(l.entries, key)
		return false, nil
	}
	return true, nil
}
