package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/ports"
	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	Value     string    `yaml:"value"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
}

// FileStore keeps keys in a YAML file so a client session survives restarts.
// It is meant for a single local user, not for concurrent processes.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore creates a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

var _ ports.Store = (*FileStore)(nil)

func (s *FileStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entry := fileEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl).UTC()
	}
	entries[key] = entry
	return s.save(entries)
}

func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", err
	}
	entry, ok := entries[key]
	if !ok || s.expired(entry) {
		return "", core.ErrKeyNotFound
	}
	return entry.Value, nil
}

func (s *FileStore) Take(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", err
	}
	entry, ok := entries[key]
	if !ok {
		return "", core.ErrKeyNotFound
	}
	delete(entries, key)
	if err := s.save(entries); err != nil {
		return "", err
	}
	if s.expired(entry) {
		return "", core.ErrKeyNotFound
	}
	return entry.Value, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.save(entries)
}

func (s *FileStore) expired(e fileEntry) bool {
	return !e.ExpiresAt.IsZero() && s.now().After(e.ExpiresAt)
}

func (s *FileStore) load() (map[string]fileEntry, error) {
	entries := make(map[string]fileEntry)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	return entries, nil
}

func (s *FileStore) save(entries map[string]fileEntry) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
