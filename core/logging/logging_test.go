package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "manyjson.log")
	logger, closeFn, err := New(Options{Level: "info", Format: "json", File: file, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Schema created", zap.String("schema", "user.json"))
	require.NoError(t, closeFn())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Schema created"`)
	assert.Contains(t, string(data), `"schema":"user.json"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "level", opts: Options{Level: "loud"}},
		{name: "format", opts: Options{Level: "info", Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestNew_ConsoleDefaults(t *testing.T) {
	logger, closeFn, err := New(Options{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	_ = closeFn()
}
