// Package store defines the hierarchical record namespace that backs claims,
// instance records, messages and activity logs. Keys are slash-separated paths
// such as "claims/MS1/U1". Backends live in sub-packages and only promise one
// cross-process guarantee: Create is an atomic create-if-absent.
package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrExists is returned by Create when the key is already present.
	ErrExists = errors.New("store: record already exists")
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("store: record not found")
	// ErrParentMissing is returned by Create when the parent namespace does
	// not exist yet. Callers create it with EnsureParent and retry.
	ErrParentMissing = errors.New("store: parent namespace missing")
	// ErrInvalidKey is returned for empty segments or path traversal.
	ErrInvalidKey = errors.New("store: invalid key")
)

// Store is a hierarchical namespace of whole records.
type Store interface {
	// Create writes data under key only if key does not exist yet.
	Create(ctx context.Context, key string, data []byte) error

	// EnsureParent creates the namespace that will contain key.
	EnsureParent(ctx context.Context, key string) error

	// Get returns the record stored at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the record at key. Readers see either the old or the new
	// record, never a partial write.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the record at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the sorted names of the immediate children of prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Namespaces used by the coordinator
const (
	ClaimsPrefix    = "claims"
	InstancesPrefix = "instances"
	MessagesPrefix  = "messages"
	ActivityPrefix  = "activity"
)

// Join builds a key from segments, validating each one
func Join(segments ...string) (string, error) {
	for _, s := range segments {
		if err := ValidateSegment(s); err != nil {
			return "", err
		}
	}
	return strings.Join(segments, "/"), nil
}

// ValidateSegment rejects segments that would escape or collapse the namespace
func ValidateSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return nil
}

// ValidateKey checks every segment of a slash-separated key
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, s := range strings.Split(key, "/") {
		if err := ValidateSegment(s); err != nil {
			return err
		}
	}
	return nil
}

// Parent returns the namespace containing key ("" for top-level keys)
func Parent(key string) string {
	dir := path.Dir(key)
	if dir == "." {
		return ""
	}
	return dir
}

// Base returns the last segment of key
func Base(key string) string {
	return path.Base(key)
}
