package store

import (
	"fmt"
	"strings"
)

// Backend names accepted by Config.Backend
const (
	BackendFS     = "fs"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend
type Config struct {
	Backend    string `toml:"backend"`
	Root       string `toml:"root"`
	RedisAddr  string `toml:"redis_addr"`
	RedisDB    int    `toml:"redis_db"`
	KeyPrefix  string `toml:"key_prefix"`
	SQLitePath string `toml:"sqlite_path"`
}

// Opener constructs a Store from Config. Backends register themselves so
// this package does not import its own sub-packages.
type Opener func(cfg Config) (Store, error)

var openers = map[string]Opener{}

// Register makes a backend available to Open
func Register(name string, fn Opener) {
	openers[name] = fn
}

// Open builds the backend named by cfg.Backend
func Open(cfg Config) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if name == "" {
		name = BackendFS
	}
	fn, ok := openers[name]
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return fn(cfg)
}
