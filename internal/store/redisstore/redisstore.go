// Package redisstore implements store.Store on Redis for fleets that share a
// Redis server instead of a volume. SETNX provides the atomic create.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

const defaultKeyPrefix = "swarm:"

func init() {
	store.Register(store.BackendRedis, func(cfg store.Config) (store.Store, error) {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redisstore: connect %s: %w", cfg.RedisAddr, err)
		}
		return New(client, cfg.KeyPrefix), nil
	})
}

// Store maps keys onto Redis strings below a common prefix
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing client. An empty keyPrefix uses "swarm:".
func New(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// Create sets key only if absent
func (s *Store) Create(ctx context.Context, key string, data []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.redisKey(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redisstore: setnx %s: %w", key, err)
	}
	if !ok {
		return store.ErrExists
	}
	return nil
}

// EnsureParent is a no-op: Redis has no directories
func (s *Store) EnsureParent(ctx context.Context, key string) error {
	return store.ValidateKey(key)
}

// Get reads key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	b, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return b, nil
}

// Put overwrites key
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redisstore: del %s: %w", key, err)
	}
	return nil
}

// List scans for keys below prefix and returns their first segment
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	base := s.prefix
	if prefix != "" {
		if err := store.ValidateKey(prefix); err != nil {
			return nil, err
		}
		base += prefix + "/"
	}

	seen := make(map[string]bool)
	iter := s.client.Scan(ctx, 0, escapeGlob(base)+"*", 200).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), base)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			seen[rest] = true
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: scan %s: %w", prefix, err)
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
