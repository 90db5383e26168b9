// Package cli implements the promptly operator command line.
package cli

import (
	"context"

	"github.com/smallbiznis/promptly/internal/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "promptly",
		Short:         "promptly credit accounting operations",
		Long:          "promptly runs the credit API and the operator tasks around it: monthly credit resets, deferred debit settlement, schema migrations and plan grant inspection.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newResetDueCmd(),
		newResetAccountCmd(),
		newSettleCmd(),
		newGrantsCmd(),
		newMigrateCmd(),
	)

	return rootCmd
}

// runTask builds the shared infrastructure, populates targets, runs fn
// between start and stop, and tears everything down.
func runTask(ctx context.Context, opts []fx.Option, fn func(context.Context) error, targets ...any) error {
	all := append([]fx.Option{
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zl := &fxevent.ZapLogger{Logger: log.Named("fx")}
			zl.UseLogLevel(zap.DebugLevel)
			return zl
		}),
		bootstrap.Infra,
	}, opts...)
	if len(targets) > 0 {
		all = append(all, fx.Populate(targets...))
	}

	app := fx.New(all...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopErr := app.Stop(context.WithoutCancel(ctx))
	if runErr != nil {
		return runErr
	}
	return stopErr
}
