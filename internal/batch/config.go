package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

// BatchConfig is one recurring batch of task groups
type BatchConfig struct {
	Name             string `toml:"name"`
	Cron             string `toml:"cron"`
	GroupsFile       string `toml:"groups_file"`
	Deadline         string `toml:"deadline"`
	NotifyOnComplete bool   `toml:"notify_on_complete"`
}

// ScheduleConfig holds all batch configurations
type ScheduleConfig struct {
	Batches []BatchConfig `toml:"batch"`
}

// Validate checks if the config is valid
func (c *BatchConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.GroupsFile == "" {
		return fmt.Errorf("groups_file is required")
	}
	if c.Deadline != "" {
		if _, err := time.ParseDuration(c.Deadline); err != nil {
			return fmt.Errorf("invalid deadline %q: %w", c.Deadline, err)
		}
	}
	return nil
}

// DeadlineDuration returns the parsed deadline, or zero for the executor
// default
func (c *BatchConfig) DeadlineDuration() time.Duration {
	d, err := time.ParseDuration(c.Deadline)
	if err != nil {
		return 0
	}
	return d
}

// LoadScheduleConfig loads batch configuration from a TOML file. A missing
// file yields an empty schedule. Relative groups files resolve against the
// schedule's directory.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	seen := make(map[string]bool, len(cfg.Batches))
	for i := range cfg.Batches {
		b := &cfg.Batches[i]
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("batch %d: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		if !filepath.IsAbs(b.GroupsFile) {
			b.GroupsFile = filepath.Join(filepath.Dir(path), b.GroupsFile)
		}
	}

	return &cfg, nil
}

// groupsFile is the wrapped form of a groups file
type groupsFile struct {
	Groups []domain.TaskGroup `json:"groups" yaml:"groups"`
}

// LoadGroups reads task groups from a YAML or JSON file. Both a bare list
// and a document with a top-level "groups" key are accepted.
func LoadGroups(path string) ([]domain.TaskGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	groups, err := ParseGroups(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return groups, nil
}

// ParseGroups decodes task groups from JSON or YAML
func ParseGroups(data []byte, isJSON bool) ([]domain.TaskGroup, error) {
	unmarshal := yaml.Unmarshal
	if isJSON {
		unmarshal = json.Unmarshal
	}

	var list []domain.TaskGroup
	if err := unmarshal(data, &list); err == nil {
		return list, validateGroups(list)
	}

	var wrapped groupsFile
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Groups, validateGroups(wrapped.Groups)
}

func validateGroups(groups []domain.TaskGroup) error {
	for i, g := range groups {
		if g.ID == "" {
			return fmt.Errorf("group %d: id is required", i)
		}
	}
	return nil
}
