package cmd

import (
	"fmt"

	"github.com/asaidimu/manyjson/core/validation"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create, list, update and delete schemas",
}

var schemaCreateCmd = &cobra.Command{
	Use:   "create <name> <file|->",
	Short: "Create a schema from a JSON Schema document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args[1])
		if err != nil {
			return err
		}
		return withWorkspace(cmd, func(a *app) error {
			schema, err := a.svc.CreateSchemaFromText(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s at %s\n", schema.Name, schema.Path)
			return nil
		})
	},
}

var schemaUpdateCmd = &cobra.Command{
	Use:   "update <name> <file|->",
	Short: "Replace the document of a schema and revalidate its files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args[1])
		if err != nil {
			return err
		}
		doc, err := validation.ParseSchemaDocument([]byte(text))
		if err != nil {
			return fmt.Errorf("Invalid JSON format: %w", err)
		}
		return withWorkspace(cmd, func(a *app) error {
			schema, err := a.svc.UpdateSchema(cmd.Context(), args[0], doc)
			if err != nil {
				return err
			}
			invalid := 0
			for _, f := range schema.AssociatedFiles {
				if !f.IsValid {
					invalid++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %d files, %d invalid\n", schema.Name, len(schema.AssociatedFiles), invalid)
			return nil
		})
	},
}

var schemaDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a schema; its data files stay on disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			if err := a.svc.DeleteSchema(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schemas with their associated files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			out := cmd.OutOrStdout()
			for _, s := range a.svc.Schemas() {
				fmt.Fprintf(out, "%s (%s)\n", s.Name, english.Plural(len(s.AssociatedFiles), "file", "files"))
				for _, f := range s.AssociatedFiles {
					status := "valid"
					if !f.IsValid {
						status = english.Plural(len(f.Errors), "error", "errors")
					}
					if f.Stale {
						status += ", stale"
					}
					fmt.Fprintf(out, "  %s  %s\n", f.Path, status)
				}
			}
			return nil
		})
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a schema as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			schema, ok := a.svc.Schema(args[0])
			if !ok {
				return fmt.Errorf("Schema not found: %s", args[0])
			}
			return printJSON(cmd, schema)
		})
	},
}

func init() {
	schemaCmd.AddCommand(schemaCreateCmd, schemaUpdateCmd, schemaDeleteCmd, schemaListCmd, schemaShowCmd)
	rootCmd.AddCommand(schemaCmd)
}
