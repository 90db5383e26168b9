package cli

import (
	"github.com/smallbiznis/promptly/internal/bootstrap"
	"github.com/smallbiznis/promptly/internal/migration"
	"github.com/smallbiznis/promptly/internal/pushmetrics"
	"github.com/smallbiznis/promptly/internal/scheduler"
	"github.com/smallbiznis/promptly/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the in-process scheduler unless disabled)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app := fx.New(
				bootstrap.Infra,
				migration.Module,
				bootstrap.Domain,
				bootstrap.HTTP,
				pushmetrics.Module,
				scheduler.Run,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
