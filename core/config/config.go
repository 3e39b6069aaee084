// Package config loads manyjson settings from a config file, MANYJSON_*
// environment variables and defaults, in increasing order of precedence
// from defaults to environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asaidimu/manyjson/core/storage"
	"github.com/asaidimu/manyjson/core/validation"
	"github.com/asaidimu/manyjson/core/workspace"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MANYJSON_DATA_DIR.
const EnvPrefix = "MANYJSON"

// Record backends.
const (
	BackendBlob   = "blob"
	BackendSQLite = "sqlite"
)

// Config is the resolved configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Records    RecordsConfig    `mapstructure:"records"`
	Log        LogConfig        `mapstructure:"log"`
	Validation ValidationConfig `mapstructure:"validation"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Retry      RetryConfig      `mapstructure:"retry"`
}

// RecordsConfig selects where the association record lives.
type RecordsConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

type ValidationConfig struct {
	Draft         string `mapstructure:"draft"`
	Strict        bool   `mapstructure:"strict"`
	AllowComments bool   `mapstructure:"allow_comments"`
}

type LimitsConfig struct {
	MaxContentBytes int `mapstructure:"max_content_bytes"`
}

type WorkspaceConfig struct {
	RequireValidOnCreate bool `mapstructure:"require_valid_on_create"`
	DiscoverFiles        bool `mapstructure:"discover_files"`
}

type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Step     time.Duration `mapstructure:"step"`
}

// SetDefaults registers every key with its default on v. Keys must be known
// to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", ".manyjson")
	v.SetDefault("records.backend", BackendBlob)
	v.SetDefault("records.sqlite_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("validation.draft", "draft7")
	v.SetDefault("validation.strict", true)
	v.SetDefault("validation.allow_comments", false)
	v.SetDefault("limits.max_content_bytes", validation.DefaultMaxContentBytes)
	v.SetDefault("workspace.require_valid_on_create", true)
	v.SetDefault("workspace.discover_files", false)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.step", 100*time.Millisecond)
}

// New returns a viper instance with defaults and environment binding set
// up. When file is empty, manyjson.{yaml,json,toml} is looked up in the
// working directory, then in ~/.config/manyjson, and is optional.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("manyjson")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "manyjson"))
		}
	}
	return v
}

// Load reads the config file, if any, and resolves v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	switch c.Records.Backend {
	case BackendBlob, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown records.backend %q", c.Records.Backend)
	}
	if _, err := validation.ParseDraft(c.Validation.Draft); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Limits.MaxContentBytes <= 0 {
		return fmt.Errorf("config: limits.max_content_bytes must be positive")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("config: retry.attempts must be at least 1")
	}
	return nil
}

// ValidationOptions maps the validation settings onto validator options.
func (c *Config) ValidationOptions() validation.Options {
	opts := validation.DefaultOptions()
	opts.Draft = c.Validation.Draft
	opts.Strict = c.Validation.Strict
	opts.AllowComments = c.Validation.AllowComments
	opts.MaxContentBytes = c.Limits.MaxContentBytes
	return opts
}

// WorkspaceOptions maps the workspace settings onto service options.
func (c *Config) WorkspaceOptions() workspace.Options {
	opts := workspace.DefaultOptions()
	opts.RequireValidOnCreate = c.Workspace.RequireValidOnCreate
	opts.DiscoverFiles = c.Workspace.DiscoverFiles
	opts.Retry = storage.RetryPolicy{Attempts: c.Retry.Attempts, Step: c.Retry.Step}
	return opts
}

// SQLitePath returns the record database path, defaulting to a file in
// the data directory.
func (c *Config) SQLitePath() string {
	if c.Records.SQLitePath != "" {
		return c.Records.SQLitePath
	}
	return filepath.Join(c.DataDir, "manyjson.db")
}
