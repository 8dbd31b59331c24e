package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"doctable/internal/schema"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		version int
		output  string
		tables  []string
	)

	cmd := &cobra.Command{
		Use:   "export <schema>",
		Short: "Write a schema's tables as a JSON artifact",
		Long: `Exports the tables of a stored schema version as the JSON artifact
format. The artifact can be edited and imported back as a new version.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd, args[0], version, output, tables)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "schema version (default latest)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringSliceVar(&tables, "table", nil, "restrict to the named tables (repeatable)")

	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command, name string, version int, output string, only []string) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	var sc *schema.Schema
	if version > 0 {
		sc, err = st.Read(ctx, name, version)
	} else {
		sc, err = st.ReadLatest(ctx, name)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "read schema", err)
	}
	if sc == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("schema %q not found", name))
	}

	all, err := st.ReadTables(ctx, sc)
	if err != nil {
		return WrapExitError(ExitFailure, "read tables", err)
	}

	selected := all
	if len(only) > 0 {
		selected = make(map[string]*schema.Table, len(only))
		for _, tname := range only {
			t, ok := all[tname]
			if !ok {
				return NewExitError(ExitFailure, fmt.Sprintf("schema %s v%d has no table %q", sc.Name, sc.Version, tname))
			}
			selected[tname] = t
		}
	}

	data, err := schema.MarshalTables(selected)
	if err != nil {
		return WrapExitError(ExitFailure, "export", err)
	}
	data = append(data, '\n')

	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "write "+output, err)
	}
	return nil
}
