package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rezakhademix/ormion"
)

// IntrospectOptions holds flags for the introspect command.
type IntrospectOptions struct {
	*RootOptions
	Output string
	Forms  bool
	Render bool
}

// NewIntrospectCommand creates the introspect command.
func NewIntrospectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntrospectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "introspect <table>",
		Short: "Build a table config from a live table",
		Long: `Read the column, nullability and primary key information of a table and
print it as a YAML table config.

Example:
  ormion introspect --dsn ./app.db pages
  ormion introspect --driver pgx --dsn postgres://localhost/app --forms -o pages.yaml pages`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntrospect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the config to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.Forms, "forms", false, "generate the default form")
	cmd.Flags().BoolVar(&opts.Render, "render", false, "print a table instead of YAML")

	return cmd
}

func runIntrospect(opts *IntrospectOptions, table string, cmd *cobra.Command) error {
	db, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg, err := ormion.Introspect(cmd.Context(), db, table, ormion.IntrospectOptions{GenerateForms: opts.Forms})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to introspect "+table, err)
	}

	if opts.Output != "" {
		if err := cfg.Save(opts.Output); err != nil {
			return WrapExitError(ExitCommandError, "failed to write config", err)
		}
		db.Logger().Info("config written", "table", table, "path", opts.Output)
		return nil
	}

	if opts.Render {
		return ormion.RenderConfig(cmd.OutOrStdout(), cfg)
	}

	if _, err := cfg.WriteTo(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
