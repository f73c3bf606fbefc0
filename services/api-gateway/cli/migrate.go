package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/planflow/internal/postgres"
	"github.com/ramiqadoumi/planflow/internal/postgres/migrations"
)

var migrateCmd = newMigrateCmd()

func newMigrateCmd() *cobra.Command {
	var (
		timeout time.Duration
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Long: `Create the projects, project_tasks, task_executions and agents tables.

Every migration is idempotent, so running this against an existing schema is
safe. The DSN comes from --postgres-dsn, POSTGRES_DSN or the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				files, err := migrations.Files()
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			}
			return runMigrate(cmd, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "abort if the schema is not applied within this time")
	cmd.Flags().BoolVar(&list, "list", false, "print the embedded migrations without connecting")
	return cmd
}

func runMigrate(cmd *cobra.Command, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, viper.GetString("postgres_dsn"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, f := range applied {
		fmt.Fprintf(out, "applied %s\n", f)
	}
	fmt.Fprintf(out, "schema up to date (%d migrations)\n", len(applied))
	return nil
}
