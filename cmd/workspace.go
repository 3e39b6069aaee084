package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/asaidimu/manyjson/core/validation"
	"github.com/asaidimu/manyjson/core/watch"
	"github.com/asaidimu/manyjson/core/workspace"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load schemas and reconcile the association record with disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			reports, err := a.svc.LoadSchemas(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, reports)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <schema-file> <data-file>",
	Short: "Validate a JSON file against a JSON Schema file without touching the store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		schemaText, err := readInput(args[0])
		if err != nil {
			return err
		}
		dataText, err := readInput(args[1])
		if err != nil {
			return err
		}

		parsedSchema := a.validate.ValidateJSONText(schemaText)
		if !parsedSchema.Valid {
			return fmt.Errorf("%s: %s", args[0], parsedSchema.Error)
		}
		doc := validation.NewSchemaDocument(parsedSchema.Parsed)
		if res := a.validate.ValidateSchemaDocument(doc); !res.Valid {
			return fmt.Errorf("%s: Invalid JSON Schema: %s", args[0], res.CompilationError)
		}
		if err := a.validate.ValidateContentSize([]byte(dataText)); err != nil {
			return err
		}
		parsedData := a.validate.ValidateJSONText(dataText)
		if !parsedData.Valid {
			return fmt.Errorf("%s: %s", args[1], parsedData.Error)
		}

		res := a.validate.ValidateInstance(validation.NewInstance(parsedData.Parsed), doc)
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if !res.Valid {
			return errors.New("validation failed")
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep validation results current while files are edited elsewhere",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withWorkspace(cmd, func(a *app) error {
			opts := a.svc.Options()
			w, err := watch.New(a.cfg.DataDir, a.logger)
			if err != nil {
				return err
			}
			if err := w.Start(opts.SchemaNamespace, opts.DataNamespace); err != nil {
				return err
			}
			defer w.Stop()

			a.svc.Subscribe(workspace.OpRefreshFile.Success(), "cli", func(_ context.Context, ev workspace.Event) error {
				a.logger.Info("Revalidated", zap.String("file", ev.File))
				return nil
			})
			a.svc.Subscribe(workspace.RecordSaveFailed, "cli", func(_ context.Context, ev workspace.Event) error {
				a.logger.Error("Association record not saved", zap.Stringp("error", ev.Error))
				return nil
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", a.cfg.DataDir)
			if err := watch.Follow(ctx, w, a.svc, a.logger); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loadCmd, validateCmd, watchCmd)
}
