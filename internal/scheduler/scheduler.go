package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/promptly/internal/clock"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	"github.com/smallbiznis/promptly/internal/ratelimit"
	usagedomain "github.com/smallbiznis/promptly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobResetDueCredits      = "reset_due_credits"
	JobSettleDeferredDebits = "settle_deferred_debits"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Credits creditdomain.Service
	Usage   usagedomain.Service
	Lock    *ratelimit.JobLock `optional:"true"`
	Config  Config             `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	credits creditdomain.Service
	usage   usagedomain.Service
	lock    *ratelimit.JobLock
	cron    *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Credits == nil || p.Usage == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	s := &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg,
		genID:   p.GenID,
		clock:   p.Clock,
		credits: p.Credits,
		usage:   p.Usage,
		lock:    p.Lock,
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{log: s.log})))
	return s, nil
}

// ResetDueCredits runs one reset batch under the cross-process job lock.
// Every trigger (cron, HTTP, CLI) goes through here.
func (s *Scheduler) ResetDueCredits(ctx context.Context) (creditdomain.ResetSummary, error) {
	release, ok, err := s.lock.Acquire(ctx, "reset_due")
	if err != nil {
		return creditdomain.ResetSummary{}, fmt.Errorf("acquire reset lock: %w", err)
	}
	if !ok {
		return creditdomain.ResetSummary{}, obsmetrics.ErrLockHeld
	}
	defer release()

	return s.credits.ResetDue(ctx, s.clock.Now())
}

// ResetDueCreditsJob is the cron entry for the monthly reset. Failed
// accounts are reported and picked up again by the next run.
func (s *Scheduler) ResetDueCreditsJob(ctx context.Context) error {
	summary, err := s.ResetDueCredits(ctx)
	if errors.Is(err, obsmetrics.ErrLockHeld) {
		s.logger(ctx).Info("reset already running elsewhere; skipping")
		return nil
	}
	if err != nil {
		return err
	}

	run := jobRunFromContext(ctx)
	run.AddProcessed(summary.Succeeded)
	obsmetrics.Scheduler().AddBatchProcessed(JobResetDueCredits, "account", summary.Succeeded, summary.Failed)

	if summary.Failed > 0 {
		failed := summary.FailedIDs()
		ids := make([]string, 0, len(failed))
		for _, id := range failed {
			ids = append(ids, id.String())
		}
		s.logSchedulerError(ctx, run, "credit reset failed for some accounts", JobResetDueCredits,
			summary.Err(),
			zap.Int("failed", summary.Failed),
			zap.Strings("account_ids", ids),
		)
		return fmt.Errorf("%d accounts failed: %w", summary.Failed, obsmetrics.ErrPartialFailure)
	}
	return nil
}

func (s *Scheduler) SettleDeferredDebitsJob(ctx context.Context) error {
	release, ok, err := s.lock.Acquire(ctx, "settle_deferred")
	if err != nil {
		return fmt.Errorf("acquire settle lock: %w", err)
	}
	if !ok {
		return nil
	}
	defer release()

	summary, err := s.usage.SettleDeferred(ctx)
	if err != nil {
		return err
	}
	run := jobRunFromContext(ctx)
	run.AddProcessed(summary.Settled + summary.Waived)
	obsmetrics.Scheduler().AddBatchProcessed(JobSettleDeferredDebits, "deferred_debit", summary.Settled, summary.Retrying)
	return nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		schedMetrics.MarkSuccess(name, s.clock.Now())
		return nil
	}

	// deadline is a soft timeout; the next run resumes where this one stopped
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every job once, in order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return errors.Join(
		s.runJob(parent, JobResetDueCredits, s.cfg.ResetTimeout, s.ResetDueCreditsJob),
		s.runJob(parent, JobSettleDeferredDebits, s.cfg.SettleTimeout, s.SettleDeferredDebitsJob),
	)
}

// Register adds the cron entries without starting the cron loop.
func (s *Scheduler) Register(ctx context.Context) error {
	jobs := []struct {
		name    string
		spec    string
		timeout time.Duration
		fn      func(context.Context) error
	}{
		{JobResetDueCredits, s.cfg.ResetSchedule, s.cfg.ResetTimeout, s.ResetDueCreditsJob},
		{JobSettleDeferredDebits, s.cfg.SettleSchedule, s.cfg.SettleTimeout, s.SettleDeferredDebitsJob},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			if err := s.runJob(ctx, job.name, job.timeout, job.fn); err != nil {
				s.log.Warn("scheduled job failed", zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
		s.log.Info("job scheduled", zap.String("job", job.name), zap.String("schedule", job.spec))
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, zap.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, zap.Error(err), zap.Any("kv", keysAndValues))
}
