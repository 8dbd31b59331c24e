package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// SchemaSummary is one stored schema version in list output.
type SchemaSummary struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Database  string    `json:"database"`
	CreatedAt time.Time `json:"createdAt"`
	Tables    int       `json:"tables"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored schema versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
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

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	schemas, err := st.List(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "list schemas", err)
	}

	summaries := make([]SchemaSummary, 0, len(schemas))
	for _, sc := range schemas {
		summaries = append(summaries, SchemaSummary{
			Name:      sc.Name,
			Version:   sc.Version,
			Database:  sc.Database,
			CreatedAt: sc.CreatedAt,
			Tables:    len(sc.Tables),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "no schemas stored")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "%-30s v%-4d %-20s %d tables  %s\n",
			s.Name, s.Version, s.Database, s.Tables, s.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
