package domain

import "time"

// DefaultWave is the wave assigned to dependent groups that declare none
const DefaultWave = 1

// TaskGroup is one unit of multi-agent work submitted to the batch executor
type TaskGroup struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Pattern   string         `json:"pattern" yaml:"pattern"`
	Agents    []string       `json:"agents" yaml:"agents"`
	Input     map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
	TimeoutMs int64          `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Wave      int            `json:"wave,omitempty" yaml:"wave,omitempty"`
}

// IsDependent returns true if the group waits on other groups
func (g *TaskGroup) IsDependent() bool {
	return len(g.DependsOn) > 0
}

// EffectiveWave returns the declared wave, defaulting to DefaultWave
func (g *TaskGroup) EffectiveWave() int {
	if g.Wave <= 0 {
		return DefaultWave
	}
	return g.Wave
}

// Timeout returns the requested per-group timeout, or def if none was set
func (g *TaskGroup) Timeout(def time.Duration) time.Duration {
	if g.TimeoutMs <= 0 {
		return def
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// GroupResult is the outcome of executing one task group
type GroupResult struct {
	GroupID      string      `json:"group_id"`
	Name         string      `json:"name"`
	Status       GroupStatus `json:"status"`
	DurationMs   int64       `json:"duration_ms"`
	SuccessCount int         `json:"success_count"`
	FailCount    int         `json:"fail_count"`
	KeyFindings  []string    `json:"key_findings"`
	Raw          any         `json:"raw,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// DependencyPayload is what a dependent group sees of one of its dependencies
type DependencyPayload struct {
	Status   GroupStatus `json:"status"`
	Findings []string    `json:"findings"`
}

// Payload returns the view of this result injected into dependent groups
func (r *GroupResult) Payload() DependencyPayload {
	findings := r.KeyFindings
	if findings == nil {
		findings = []string{}
	}
	return DependencyPayload{Status: r.Status, Findings: findings}
}

// BatchResult is the consolidated outcome of one executor run
type BatchResult struct {
	TotalGroups     int            `json:"total_groups"`
	CompletedGroups int            `json:"completed_groups"`
	FailedGroups    int            `json:"failed_groups"`
	TimedOut        bool           `json:"timed_out"`
	DurationMs      int64          `json:"duration_ms"`
	Results         []*GroupResult `json:"results"`
	Synthesis       []string       `json:"synthesis"`
}
