package store

import (
	"context"
	"sync"
	"time"
)

// entry is a stored value with expiration.
type entry struct {
	value      int64
	expiration time.Time
}

// MemoryStore implements Store using in-process storage. Expired keys
// are ignored on access; the background sweep only reclaims memory.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]*entry
	ticker *time.Ticker
	done   chan struct{}
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanupInterval(time.Minute)
}

// NewMemoryStoreWithCleanupInterval creates a store with a custom sweep interval.
func NewMemoryStoreWithCleanupInterval(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		data:   make(map[string]*entry),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || s.expired(e) {
		delete(s.data, key)
		return 0, &ErrKeyNotFound{Key: key}
	}

	return e.value, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &entry{value: value, expiration: expiryTime(expiration)}
	return nil
}

// IncrementWithExpiry implements Store. The whole operation runs under
// the store lock, so concurrent increments never lose updates.
func (s *MemoryStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || s.expired(e) {
		e = &entry{expiration: expiryTime(expiration)}
		s.data[key] = e
	}
	e.value += delta

	return e.value, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.ticker.Stop()
	close(s.done)

	return nil
}

// expired reports whether the entry is past its expiration.
func (s *MemoryStore) expired(e *entry) bool {
	return !e.expiration.IsZero() && time.Now().After(e.expiration)
}

// expiryTime converts a TTL to an absolute expiration time.
func expiryTime(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return time.Now().Add(expiration)
}

// sweepLoop reclaims memory held by expired entries.
func (s *MemoryStore) sweepLoop() {
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep removes expired entries.
func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.data {
		if s.expired(e) {
			delete(s.data, key)
		}
	}
}
