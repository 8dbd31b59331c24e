package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"doctable/internal/schema"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "import <schema> <artifact.json>",
		Short: "Import a table artifact as a new schema version",
		Long: `Validates an exported (possibly edited) table artifact against the
wire schema and stores it as the next version of the named schema.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0], args[1], database)
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "source database recorded in the schema (default from config)")

	return cmd
}

func runImport(opts *RootOptions, cmd *cobra.Command, name, path, database string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if database == "" {
		database = cfg.Database
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read "+path, err)
	}

	if err := validateArtifact(data); err != nil {
		return WrapExitError(ExitFailure, "validate "+path, err)
	}
	formatter.VerboseLog("artifact %s conforms to the wire schema", path)

	tables, err := schema.UnmarshalTables(data)
	if err != nil {
		return WrapExitError(ExitFailure, "parse "+path, err)
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	prev, err := st.ReadLatest(ctx, name)
	if err != nil {
		return WrapExitError(ExitFailure, "read schema", err)
	}
	var sc *schema.Schema
	if prev == nil {
		sc = schema.NewSchema(name, database, tables)
	} else {
		sc = prev.NextVersion(tables)
	}

	if err := st.Write(ctx, sc, tables); err != nil {
		return WrapExitError(ExitFailure, "write schema", err)
	}

	if opts.Format == "json" {
		return formatter.Success(SchemaSummary{
			Name:      sc.Name,
			Version:   sc.Version,
			Database:  sc.Database,
			CreatedAt: sc.CreatedAt,
			Tables:    len(sc.Tables),
		})
	}
	fmt.Fprintf(formatter.Writer, "imported %s version %d (%d tables)\n", sc.Name, sc.Version, len(sc.Tables))
	return nil
}
