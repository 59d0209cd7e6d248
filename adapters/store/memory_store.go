package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/ports"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore struct {
	entries map[string]memoryEntry
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

var _ ports.Store = (*MemoryStore)(nil)

// Set stores value under key. A non-positive ttl keeps the key until deleted.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Get retrieves a value by key
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(key)
}

// Take retrieves a value and deletes the key
func (s *MemoryStore) Take(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.lookup(key)
	delete(s.entries, key)
	return value, err
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// lookup must be called with mu held
func (s *MemoryStore) lookup(key string) (string, error) {
	entry, ok := s.entries[key]
	if !ok {
		return "", core.ErrKeyNotFound
	}
	if entry.expired(s.now()) {
		delete(s.entries, key)
		return "", core.ErrKeyNotFound
	}
	return entry.value, nil
}
