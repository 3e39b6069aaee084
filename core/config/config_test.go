package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, ".manyjson", cfg.DataDir)
	assert.Equal(t, BackendBlob, cfg.Records.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "draft7", cfg.Validation.Draft)
	assert.True(t, cfg.Validation.Strict)
	assert.Equal(t, 10<<20, cfg.Limits.MaxContentBytes)
	assert.True(t, cfg.Workspace.RequireValidOnCreate)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Step)
	assert.Equal(t, filepath.Join(".manyjson", "manyjson.db"), cfg.SQLitePath())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manyjson.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
data_dir: /srv/manyjson
records:
  backend: sqlite
validation:
  draft: "2020-12"
  allow_comments: true
retry:
  attempts: 5
  step: 250ms
`), 0o644))

	t.Setenv("MANYJSON_DATA_DIR", "/env/dir")
	t.Setenv("MANYJSON_WORKSPACE_DISCOVER_FILES", "true")

	cfg, err := Load(New(file))
	require.NoError(t, err)

	assert.Equal(t, "/env/dir", cfg.DataDir)
	assert.Equal(t, BackendSQLite, cfg.Records.Backend)
	assert.Equal(t, "2020-12", cfg.Validation.Draft)
	assert.True(t, cfg.Validation.AllowComments)
	assert.True(t, cfg.Workspace.DiscoverFiles)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Step)

	vopts := cfg.ValidationOptions()
	assert.True(t, vopts.AllowComments)
	assert.Equal(t, "2020-12", vopts.Draft)

	wopts := cfg.WorkspaceOptions()
	assert.True(t, wopts.DiscoverFiles)
	assert.Equal(t, 5, wopts.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, wopts.Retry.Step)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DataDir:    "data",
			Records:    RecordsConfig{Backend: BackendBlob},
			Validation: ValidationConfig{Draft: "draft7"},
			Limits:     LimitsConfig{MaxContentBytes: 1},
			Retry:      RetryConfig{Attempts: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = " " }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Records.Backend = "redis" }, wantErr: true},
		{name: "unknown draft", mutate: func(c *Config) { c.Validation.Draft = "draft3" }, wantErr: true},
		{name: "zero limit", mutate: func(c *Config) { c.Limits.MaxContentBytes = 0 }, wantErr: true},
		{name: "no attempts", mutate: func(c *Config) { c.Retry.Attempts = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
