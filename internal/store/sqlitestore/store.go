// Package sqlitestore implements store.Store in a single SQLite file, for
// workers that share one host but not a writable directory tree.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

func init() {
	store.Register(store.BackendSQLite, func(cfg store.Config) (store.Store, error) {
		return New(cfg.SQLitePath)
	})
}

// Store provides SQLite-backed record persistence
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath
func New(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlitestore: database path is empty")
	}
	// Pragmas go in the DSN so every pooled connection gets them; several
	// processes may share the file.
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	dsn := dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Create inserts key unless it already exists
func (s *Store) Create(ctx context.Context, key string, data []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, parent, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, store.Parent(key), data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlitestore: insert %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrExists
	}
	return nil
}

// EnsureParent is a no-op: parents are implicit in the key column
func (s *Store) EnsureParent(ctx context.Context, key string) error {
	return store.ValidateKey(key)
}

// Get returns the value stored at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitestore: select %s: %w", key, err)
	}
	return data, nil
}

// Put inserts or replaces key
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, parent, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, store.Parent(key), data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlitestore: delete %s: %w", key, err)
	}
	return nil
}

// List returns the first path segment of every key below prefix
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM records`
	var args []interface{}
	base := ""
	if prefix != "" {
		if err := store.ValidateKey(prefix); err != nil {
			return nil, err
		}
		// Byte-wise range over the BINARY collation; LIKE would fold ASCII case.
		// '0' is the byte after '/'.
		base = prefix + "/"
		query += ` WHERE key >= ? AND key < ?`
		args = append(args, base, prefix+"0")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list %s: %w", prefix, err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(key, base) {
			continue
		}
		rest := key[len(base):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
