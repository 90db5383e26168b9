package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/migration"
	"github.com/smallbiznis/promptly/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var ErrDownUnsupported = errors.New("down migrations require postgres")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// migration.Module runs on construction.
			return runTask(cmd.Context(), []fx.Option{migration.Module}, func(context.Context) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return err
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}
			cfg := config.Load()
			if cfg.DBType != "" && cfg.DBType != "postgres" {
				return fmt.Errorf("%w: DATABASE_TYPE=%s", ErrDownUnsupported, cfg.DBType)
			}
			if err := migration.Down(db.URL(db.ConfigFrom(cfg)), steps); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return err
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}
