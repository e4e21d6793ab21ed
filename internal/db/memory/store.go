// Package memory is an in-process db.Store used by tests and local
// runs without a Redis instance. Glob matching supports the '*'
// wildcard, which is all the repositories use.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/phapluat-cloud/lexdex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store keeps hashes in a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{hashes: make(map[string]map[string]string)}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady always succeeds.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// HSet sets hash fields, merging with any existing fields.
func (s *Store) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, fields)
	return nil
}

// HSetMulti sets multiple hashes atomically relative to readers.
func (s *Store) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.setLocked(item.Key, item.Fields)
	}
	return nil
}

func (s *Store) setLocked(key string, fields map[string]string) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}

// HGetAll returns a copy of all fields of a hash; empty map for a
// missing key, matching Redis semantics.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

// HGetAllMulti returns fields for multiple hashes.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		m, err := s.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// Del deletes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, key)
	return nil
}

// Exists checks if a key exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[key]
	return ok, nil
}

// Scan returns keys matching a glob pattern with '*' wildcards.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.hashes {
		if globMatch(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// globMatch matches '*' wildcards; no escaping, no character classes.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}
