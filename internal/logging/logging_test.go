package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/config"
)

func TestNew_Level(t *testing.T) {
	logger := New(config.LogConfig{Level: "warn", Format: "json", OutputPaths: []string{"stderr"}})
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger = New(config.LogConfig{Level: "bogus"})
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.log")
	logger := New(config.LogConfig{Level: "debug", Format: "json", OutputPaths: []string{path}})
	logger.Info("claimed unit")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"claimed unit"`)
	assert.Contains(t, string(data), `"timestamp"`)
}
