package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/bootstrap"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	"github.com/smallbiznis/promptly/internal/scheduler"
	usagedomain "github.com/smallbiznis/promptly/internal/usage/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newResetDueCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reset-due",
		Short: "Reset credits for every account whose last reset precedes this month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sched *scheduler.Scheduler
			return runTask(cmd.Context(), []fx.Option{bootstrap.Domain}, func(ctx context.Context) error {
				summary, err := sched.ResetDueCredits(ctx)
				if err != nil {
					return err
				}
				if err := writeResetSummary(cmd.OutOrStdout(), summary, asJSON); err != nil {
					return err
				}
				if summary.Failed > 0 {
					return fmt.Errorf("%d accounts failed: %w", summary.Failed, obsmetrics.ErrPartialFailure)
				}
				return nil
			}, &sched)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newResetAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-account <account-id>",
		Short: "Set one account's credits to its plan grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := snowflake.ParseString(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid account id %q: %w", args[0], err)
			}

			var credits creditdomain.Service
			return runTask(cmd.Context(), []fx.Option{bootstrap.Domain}, func(ctx context.Context) error {
				balance, err := credits.ResetOne(ctx, id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "account %s reset: plan=%s credits=%d\n", balance.AccountID, balance.Plan, balance.Credits)
				return err
			}, &credits)
		},
	}
}

func newSettleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle-deferred",
		Short: "Retry pending deferred debits once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var usage usagedomain.Service
			return runTask(cmd.Context(), []fx.Option{bootstrap.Domain}, func(ctx context.Context) error {
				summary, err := usage.SettleDeferred(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "selected=%d settled=%d waived=%d retrying=%d\n",
					summary.Selected, summary.Settled, summary.Waived, summary.Retrying)
				return err
			}, &usage)
		},
	}
}

func writeResetSummary(w io.Writer, summary creditdomain.ResetSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	if _, err := fmt.Fprintf(w, "cutoff=%s selected=%d succeeded=%d skipped=%d failed=%d\n",
		summary.Cutoff.Format("2006-01-02"), summary.Selected, summary.Succeeded, summary.Skipped, summary.Failed); err != nil {
		return err
	}
	for _, r := range summary.Results {
		if r.Outcome != creditdomain.ResetOutcomeFailed {
			continue
		}
		if _, err := fmt.Fprintf(w, "  failed %s: %s\n", r.AccountID, r.Error); err != nil {
			return err
		}
	}
	return nil
}
