// Package fsstore implements store.Store on a directory tree. It is meant for
// a volume shared by every worker process: Create relies on the atomicity of
// hard-link creation, so two processes racing for the same key cannot both win.
//
// Layout mirrors the key space one-to-one:
//
//	<root>/claims/<milestone>/<unit>
//	<root>/instances/<instance>
//	<root>/messages/<timestamp>_<from>_<type>
//	<root>/activity/<milestone>
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

const tmpPrefix = ".tmp-"

func init() {
	store.Register(store.BackendFS, func(cfg store.Config) (store.Store, error) {
		return New(cfg.Root)
	})
}

// Store persists records as files below root
type Store struct {
	root string
}

// New creates the root directory if needed and returns a Store over it
func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("fsstore: root dir is empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("fsstore: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory backing the store
func (s *Store) Root() string {
	return s.root
}

// Path maps a key to its file path
func (s *Store) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Create writes data to a temp file and links it into place. The link either
// succeeds atomically or fails with EEXIST, and readers never observe a
// half-written record.
func (s *Store) Create(ctx context.Context, key string, data []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	final := s.Path(key)

	tmpName, err := s.writeTemp(filepath.Dir(final), data)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.ErrParentMissing
		}
		return err
	}
	defer func() { _ = os.Remove(tmpName) }()

	err = os.Link(tmpName, final)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrExist):
		return store.ErrExists
	case errors.Is(err, syscall.EPERM), errors.Is(err, syscall.ENOTSUP), errors.Is(err, syscall.EXDEV):
		// Filesystem without hard links
		return createExclusive(final, data)
	default:
		return fmt.Errorf("fsstore: link %s: %w", key, err)
	}
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return store.ErrExists
		}
		if errors.Is(err, os.ErrNotExist) {
			return store.ErrParentMissing
		}
		return fmt.Errorf("fsstore: create: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsstore: write: %w", err)
	}
	return f.Close()
}

// EnsureParent creates the directory that will contain key
func (s *Store) EnsureParent(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path(key)), 0755); err != nil {
		return fmt.Errorf("fsstore: create parent: %w", err)
	}
	return nil
}

// Get reads the record at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("fsstore: read %s: %w", key, err)
	}
	return b, nil
}

// Put replaces the record at key via temp file and rename
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := s.EnsureParent(ctx, key); err != nil {
		return err
	}
	final := s.Path(key)

	tmpName, err := s.writeTemp(filepath.Dir(final), data)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpName) }()

	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("fsstore: rename %s: %w", key, err)
	}
	return nil
}

// Delete removes the record at key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fsstore: remove %s: %w", key, err)
	}
	return nil
}

// List returns the names of files and directories directly below prefix
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.root
	if prefix != "" {
		if err := store.ValidateKey(prefix); err != nil {
			return nil, err
		}
		dir = s.Path(prefix)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsstore: list %s: %w", prefix, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op for the filesystem backend
func (s *Store) Close() error {
	return nil
}

func (s *Store) writeTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("fsstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("fsstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("fsstore: close temp file: %w", err)
	}
	return tmpName, nil
}
