package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand is the program Command runs when none is configured
const DefaultCommand = "claude-swarm-run"

// Command runs each group through an external program. The request is
// written to stdin as JSON; the program prints a Result as JSON on stdout.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// NewCommand returns a Command for path, or DefaultCommand if empty
func NewCommand(path string, args ...string) *Command {
	if strings.TrimSpace(path) == "" {
		path = DefaultCommand
	}
	return &Command{Path: path, Args: args}
}

// Run executes the program. The request timeout bounds the process; this is
// the engine's own timeout, independent of the caller's race.
func (c *Command) Run(ctx context.Context, req Request) (*Result, error) {
	parent := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
		req.TimeoutMs = req.Timeout.Milliseconds()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w after %s", c.Path, ErrTimeout, req.Timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", c.Path, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", c.Path, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", c.Path, err, msg)
	}

	var res Result
	if err := json.Unmarshal(lastJSONLine(stdout.Bytes()), &res); err != nil {
		return nil, fmt.Errorf("parse %s output: %w", c.Path, err)
	}
	return &res, nil
}

// lastJSONLine returns the last line that looks like a JSON object, so tools
// that print progress before their result still work.
func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 && line[0] == '{' {
			return line
		}
	}
	return bytes.TrimSpace(out)
}
