package cmd

import (
	"errors"
	"fmt"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/workspace"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage data files associated with schemas",
}

var fileCreateCmd = &cobra.Command{
	Use:   "create <schema> <name> <file|->",
	Short: "Create a data file in the namespace of a schema",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args[2])
		if err != nil {
			return err
		}
		return withWorkspace(cmd, func(a *app) error {
			file, err := a.svc.CreateDataFile(cmd.Context(), args[0], args[1], text)
			if err != nil {
				printIssues(cmd, err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", file.Path)
			return nil
		})
	},
}

var fileSaveCmd = &cobra.Command{
	Use:   "save <locator> <file|->",
	Short: "Overwrite a data file; validation never blocks the save",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args[1])
		if err != nil {
			return err
		}
		return withWorkspace(cmd, func(a *app) error {
			file, err := a.svc.SaveDataFile(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			printFile(cmd, file)
			return nil
		})
	},
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete <locator>",
	Short: "Delete a data file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			if err := a.svc.DeleteDataFile(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

var fileRenameCmd = &cobra.Command{
	Use:   "rename <locator> <new-name>",
	Short: "Rename a data file within its namespace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			file, err := a.svc.RenameFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", args[0], file.Path)
			return nil
		})
	},
}

var fileAssociateCmd = &cobra.Command{
	Use:   "associate <schema> <locator>",
	Short: "Attach an existing data file to a schema",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			file, err := a.svc.AssociateFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printFile(cmd, file)
			return nil
		})
	},
}

var fileListCmd = &cobra.Command{
	Use:   "list <schema>",
	Short: "Re-read the namespace of a schema and list its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			schema, err := a.svc.LoadSchemaFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, f := range schema.AssociatedFiles {
				printFile(cmd, f)
			}
			return nil
		})
	},
}

var fileShowCmd = &cobra.Command{
	Use:   "show <locator>",
	Short: "Print a data file with its validation result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			file, _, ok := a.svc.File(args[0])
			if !ok {
				return fmt.Errorf("File not found: %s", args[0])
			}
			return printJSON(cmd, file)
		})
	},
}

var fileValidateCmd = &cobra.Command{
	Use:   "validate <locator>",
	Short: "Re-read a data file and validate it against its schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(a *app) error {
			file, err := a.svc.RefreshFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printFile(cmd, file)
			if !file.IsValid {
				return errors.New("validation failed")
			}
			return nil
		})
	},
}

func printFile(cmd *cobra.Command, f association.JsonFile) {
	out := cmd.OutOrStdout()
	size := ""
	if data, err := f.Content.MarshalJSON(); err == nil {
		size = humanize.IBytes(uint64(len(data)))
	}
	if f.IsValid {
		fmt.Fprintf(out, "%s  %s  valid\n", f.Path, size)
		return
	}
	fmt.Fprintf(out, "%s  %s  %s\n", f.Path, size, english.Plural(len(f.Errors), "error", "errors"))
	for _, e := range f.Errors {
		fmt.Fprintf(out, "    %s: %s (%s)\n", pointerOrRoot(e.InstancePath), e.Message, e.Keyword)
	}
}

// printIssues lists the violations that blocked a file creation.
func printIssues(cmd *cobra.Command, err error) {
	var werr *workspace.Error
	if !errors.As(err, &werr) {
		return
	}
	for _, e := range werr.Issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s (%s)\n", pointerOrRoot(e.InstancePath), e.Message, e.Keyword)
	}
}

func pointerOrRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func init() {
	fileCmd.AddCommand(fileCreateCmd, fileSaveCmd, fileDeleteCmd, fileRenameCmd, fileAssociateCmd, fileListCmd, fileShowCmd, fileValidateCmd)
	rootCmd.AddCommand(fileCmd)
}
