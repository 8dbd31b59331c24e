package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:           "remove <schema>",
		Short:         "Remove a stored schema or one of its versions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(rootOpts, cmd, args[0], version)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "remove only this version")

	return cmd
}

func runRemove(opts *RootOptions, cmd *cobra.Command, name string, version int) error {
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

	if version > 0 {
		if err := st.RemoveVersion(ctx, name, version); err != nil {
			return WrapExitError(ExitFailure, "remove", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s version %d\n", name, version)
		return nil
	}

	if err := st.Remove(ctx, name); err != nil {
		return WrapExitError(ExitFailure, "remove", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
	return nil
}
