package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Store         store.Config        `toml:"store"`
	Claims        ClaimsConfig        `toml:"claims"`
	Registry      RegistryConfig      `toml:"registry"`
	Activity      ActivityConfig      `toml:"activity"`
	Scheduler     SchedulerConfig     `toml:"scheduler"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Log           LogConfig           `toml:"log"`
}

// GeneralConfig identifies this worker
type GeneralConfig struct {
	InstanceID   string `toml:"instance_id"`
	Workspace    string `toml:"workspace"`
	Branch       string `toml:"branch"`
	ScheduleFile string `toml:"schedule_file"`
}

// ClaimsConfig holds claim protocol settings
type ClaimsConfig struct {
	StaleThreshold Duration `toml:"stale_threshold"`
}

// RegistryConfig holds instance registry settings
type RegistryConfig struct {
	ActiveWindow Duration `toml:"active_window"`
}

// ActivityConfig holds activity log settings
type ActivityConfig struct {
	Capacity int `toml:"capacity"`
}

// SchedulerConfig holds batch executor settings
type SchedulerConfig struct {
	Deadline        Duration `toml:"deadline"`
	GroupTimeout    Duration `toml:"group_timeout"`
	MinGroupTimeout Duration `toml:"min_group_timeout"`
	Buffer          Duration `toml:"buffer"`
	Grace           Duration `toml:"grace"`
	EngineCommand   []string `toml:"engine_command"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string   `toml:"level"`
	Format      string   `toml:"format"` // json or console
	OutputPaths []string `toml:"output_paths"`
}

// Duration is a time.Duration written as a Go duration string ("90s")
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			ScheduleFile: filepath.Join(home, ".config", "swarmctl", "schedule.toml"),
		},
		Store: store.Config{
			Backend:    store.BackendFS,
			Root:       filepath.Join(home, ".swarm"),
			RedisAddr:  "127.0.0.1:6379",
			KeyPrefix:  "swarm:",
			SQLitePath: filepath.Join(home, ".swarm", "swarm.db"),
		},
		Claims: ClaimsConfig{
			StaleThreshold: Duration{5 * time.Minute},
		},
		Registry: RegistryConfig{
			ActiveWindow: Duration{10 * time.Minute},
		},
		Activity: ActivityConfig{
			Capacity: 500,
		},
		Scheduler: SchedulerConfig{
			Deadline:        Duration{45 * time.Second},
			GroupTimeout:    Duration{30 * time.Second},
			MinGroupTimeout: Duration{5 * time.Second},
			Buffer:          Duration{2 * time.Second},
			Grace:           Duration{time.Second},
			EngineCommand:   []string{"claude-swarm-run"},
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Port: 8090,
			Host: "127.0.0.1",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.ScheduleFile = ExpandPath(cfg.General.ScheduleFile)
	cfg.Store.Root = ExpandPath(cfg.Store.Root)
	cfg.Store.SQLitePath = ExpandPath(cfg.Store.SQLitePath)

	return cfg, cfg.Validate()
}

// Validate rejects settings the coordinator cannot run with
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case "", store.BackendFS, store.BackendMemory, store.BackendRedis, store.BackendSQLite:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Claims.StaleThreshold.Duration < 0 {
		return fmt.Errorf("claims.stale_threshold must not be negative")
	}
	if c.Activity.Capacity < 0 {
		return fmt.Errorf("activity.capacity must not be negative")
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "swarmctl", "config.toml")
}
