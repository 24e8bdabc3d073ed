package cli

import (
	"github.com/spf13/cobra"

	"github.com/rezakhademix/ormion"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Check bool
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema <config.yaml>...",
		Short: "Render table configs",
		Long: `Render one or more YAML table configs as tables. With --check every
config is compared with the live database given by --driver and --dsn.

Example:
  ormion schema pages.yaml tags.yaml
  ormion schema --check --dsn ./app.db pages.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "check the configs against the database")

	return cmd
}

func runSchema(opts *SchemaOptions, paths []string, cmd *cobra.Command) error {
	configs := make([]*ormion.Config, 0, len(paths))
	for _, p := range paths {
		cfg, err := ormion.LoadConfig(p)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		configs = append(configs, cfg)
	}

	for _, cfg := range configs {
		if err := ormion.RenderConfig(cmd.OutOrStdout(), cfg); err != nil {
			return err
		}
	}

	if !opts.Check {
		return nil
	}

	db, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, cfg := range configs {
		if err := ormion.CheckSchema(cmd.Context(), db, cfg); err != nil {
			return WrapExitError(ExitFailure, "schema check failed", err)
		}
		db.Logger().Info("schema matches", "table", cfg.Table)
	}
	return nil
}
