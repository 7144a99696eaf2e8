// Package memstore is an in-process store.Store used by tests and by
// single-process setups that do not need records to outlive the process.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

func init() {
	store.Register(store.BackendMemory, func(cfg store.Config) (store.Store, error) {
		return New(), nil
	})
}

// Store keeps records in a map. Namespaces must exist before Create, just
// like directories on disk, so callers exercise the same retry path.
type Store struct {
	records map[string][]byte
	dirs    map[string]bool
	mu      sync.RWMutex
}

// New returns an empty store
func New() *Store {
	return &Store{
		records: make(map[string][]byte),
		dirs:    make(map[string]bool),
	}
}

// Create stores data under key if it is absent
func (s *Store) Create(ctx context.Context, key string, data []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent := store.Parent(key); parent != "" && !s.dirs[parent] {
		return store.ErrParentMissing
	}
	if _, ok := s.records[key]; ok {
		return store.ErrExists
	}
	s.records[key] = clone(data)
	return nil
}

// EnsureParent marks every ancestor of key as an existing namespace
func (s *Store) EnsureParent(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureParentLocked(key)
	return nil
}

func (s *Store) ensureParentLocked(key string) {
	for p := store.Parent(key); p != ""; p = store.Parent(p) {
		s.dirs[p] = true
	}
}

// Get returns a copy of the record at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.records[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(data), nil
}

// Put replaces the record at key, creating its namespace
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureParentLocked(key)
	s.records[key] = clone(data)
	return nil
}

// Delete removes key if present
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// List returns the immediate children of prefix
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		if err := store.ValidateKey(prefix); err != nil {
			return nil, err
		}
		prefix += "/"
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	collect := func(k string) {
		if !strings.HasPrefix(k, prefix) {
			return
		}
		rest := k[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = true
	}
	for k := range s.records {
		collect(k)
	}
	for d := range s.dirs {
		collect(d)
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
