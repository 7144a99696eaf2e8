// Package engine defines the boundary to whatever actually runs one task
// group's agents. The batch executor treats it as a black box.
package engine

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is wrapped by engines that stop a group because the request
// timeout ran out
var ErrTimeout = errors.New("engine: group timed out")

// Request describes one task group execution
type Request struct {
	Name    string         `json:"name"`
	Pattern string         `json:"pattern"`
	Agents  []string       `json:"agents"`
	Input   map[string]any `json:"input,omitempty"`
	Timeout time.Duration  `json:"-"`
	// TimeoutMs mirrors Timeout on the wire
	TimeoutMs int64 `json:"timeout_ms"`
}

// AgentResult is one agent's contribution to a group
type AgentResult struct {
	Agent   string `json:"agent"`
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is what the engine reports for a group
type Result struct {
	Status           string        `json:"status"`
	SuccessCount     int           `json:"success_count"`
	FailCount        int           `json:"fail_count"`
	AgentResults     []AgentResult `json:"agent_results,omitempty"`
	AggregatedOutput any           `json:"aggregated_output,omitempty"`
	Consensus        any           `json:"consensus,omitempty"`
}

// Engine runs task groups
type Engine interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a function to Engine
type Func func(ctx context.Context, req Request) (*Result, error)

// Run calls f
func (f Func) Run(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
