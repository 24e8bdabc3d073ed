package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rezakhademix/ormion"

	// Pure Go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Driver         string
	DSN            string
	Verbose        bool
	StatementCache int
}

// NewRootCommand creates the root command for the ormion CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ormion",
		Short: "Inspect tables and table configs",
		Long: `ormion builds table configs from live databases and renders them.

Supported drivers: sqlite, sqlite3, pgx, postgres, mysql.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "sqlite", "database/sql driver name")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "data source name")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log statements")
	cmd.PersistentFlags().IntVar(&opts.StatementCache, "statement-cache", 0, "prepared statements to keep per connection pool (0 disables)")

	cmd.AddCommand(NewIntrospectCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) open(cmd *cobra.Command) (*ormion.DB, error) {
	if o.DSN == "" {
		return nil, NewExitError(ExitCommandError, "--dsn is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dbOpts := []ormion.Option{ormion.WithLogger(o.logger(cmd.ErrOrStderr()))}
	if o.StatementCache > 0 {
		dbOpts = append(dbOpts, ormion.WithStatementCache(o.StatementCache))
	}

	db, err := ormion.Open(ctx, o.Driver, o.DSN, dbOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return db, nil
}
