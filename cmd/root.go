// Package cmd implements the manyjson command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/asaidimu/manyjson/core/config"
	"github.com/asaidimu/manyjson/core/logging"
	"github.com/asaidimu/manyjson/core/persistence"
	"github.com/asaidimu/manyjson/core/validation"
	"github.com/asaidimu/manyjson/core/workspace"
	"github.com/asaidimu/manyjson/filestore"
	"github.com/asaidimu/manyjson/sqlite"
	"github.com/asaidimu/manyjson/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "manyjson",
	Short: "Manage JSON Schemas and the data files validated against them",
	Long: `manyjson keeps a set of JSON Schema documents and, for each schema, the
JSON data files that are validated against it. Associations are remembered
across sessions and reconciled with what is on disk when loading.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./manyjson.yaml)")
	flags.String("data-dir", "", "directory holding schemas and data files")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("records", "", "association record backend: blob or sqlite")

	cobra.OnInitialize(func() {
		v = config.New(cfgFile)
		_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
		_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
		_ = v.BindPFlag("records.backend", flags.Lookup("records"))
	})
}

// app holds everything a command needs for one invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	validate *validation.Validator
	svc      *workspace.Service
	closers  []func() error
}

// newApp resolves configuration and builds the logger and validator.
func newApp() (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})
	if err != nil {
		return nil, err
	}
	val, err := validation.New(cfg.ValidationOptions(), logger)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, validate: val, closers: []func() error{closeLog}}, nil
}

// openWorkspace builds the app, opens the store and loads every schema with
// its associations.
func openWorkspace(ctx context.Context) (*app, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	store, err := filestore.New(a.cfg.DataDir, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var records persistence.RecordStore
	if a.cfg.Records.Backend == config.BackendSQLite {
		rs, err := sqlite.Open(a.cfg.SQLitePath(), a.logger, sqlite.DefaultOptions())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append([]func() error{rs.Close}, a.closers...)
		records = rs
	}

	svc, err := workspace.New(store, records, a.validate, a.cfg.WorkspaceOptions(), a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, err := svc.LoadSchemas(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// readInput returns the content of a file argument, or stdin for "-".
func readInput(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return string(data), nil
}

// printJSON writes v to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// withWorkspace opens the workspace for the duration of fn.
func withWorkspace(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
