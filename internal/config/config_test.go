package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Store.Backend != "fs" {
		t.Errorf("Store.Backend = %q, want fs", cfg.Store.Backend)
	}
	if cfg.Claims.StaleThreshold.Duration != 5*time.Minute {
		t.Errorf("StaleThreshold = %v, want 5m", cfg.Claims.StaleThreshold)
	}
	if cfg.Scheduler.Deadline.Duration != 45*time.Second {
		t.Errorf("Scheduler.Deadline = %v, want 45s", cfg.Scheduler.Deadline)
	}
	if cfg.Activity.Capacity != 500 {
		t.Errorf("Activity.Capacity = %d, want 500", cfg.Activity.Capacity)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
instance_id = "W-A"
workspace = "/work/a"

[store]
backend = "redis"
redis_addr = "redis:6379"

[claims]
stale_threshold = "90s"

[scheduler]
deadline = "2m"
engine_command = ["swarm-run", "--json"]

[web]
port = 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.InstanceID != "W-A" {
		t.Errorf("InstanceID = %q, want W-A", cfg.General.InstanceID)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.RedisAddr != "redis:6379" {
		t.Errorf("Store = %+v, want redis at redis:6379", cfg.Store)
	}
	if cfg.Claims.StaleThreshold.Duration != 90*time.Second {
		t.Errorf("StaleThreshold = %v, want 90s", cfg.Claims.StaleThreshold)
	}
	if cfg.Scheduler.Deadline.Duration != 2*time.Minute {
		t.Errorf("Deadline = %v, want 2m", cfg.Scheduler.Deadline)
	}
	// untouched fields keep defaults
	if cfg.Scheduler.GroupTimeout.Duration != 30*time.Second {
		t.Errorf("GroupTimeout = %v, want 30s", cfg.Scheduler.GroupTimeout)
	}
	if len(cfg.Scheduler.EngineCommand) != 2 || cfg.Scheduler.EngineCommand[0] != "swarm-run" {
		t.Errorf("EngineCommand = %v", cfg.Scheduler.EngineCommand)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 8090 {
		t.Errorf("Web.Port = %d, want 8090", cfg.Web.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad duration": "[claims]\nstale_threshold = \"soon\"\n",
		"bad backend":  "[store]\nbackend = \"etcd\"\n",
		"bad port":     "[web]\nport = 70000\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
