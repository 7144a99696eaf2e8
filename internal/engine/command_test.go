package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCommand_Run(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo "warming up"
echo '{"status":"completed","success_count":2,"fail_count":0,"aggregated_output":"done"}'
`)

	res, err := NewCommand(script).Run(context.Background(), Request{Name: "g1", Agents: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, "done", res.AggregatedOutput)
}

func TestCommand_Failure(t *testing.T) {
	script := writeScript(t, `echo "boom" >&2; exit 3`)

	_, err := NewCommand(script).Run(context.Background(), Request{Name: "g1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCommand_OwnTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)

	start := time.Now()
	_, err := NewCommand(script).Run(context.Background(), Request{Name: "g1", Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommand_CallerCancelIsNotTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := NewCommand(script).Run(ctx, Request{Name: "g1", Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewCommand_Default(t *testing.T) {
	assert.Equal(t, DefaultCommand, NewCommand("").Path)
}

func TestFunc(t *testing.T) {
	var e Engine = Func(func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Status: req.Name}, nil
	})
	res, err := e.Run(context.Background(), Request{Name: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
}
