package scheduler

import (
	"time"

	"github.com/smallbiznis/promptly/internal/config"
)

// Config controls cron specs and per-job soft timeouts.
type Config struct {
	Enabled        bool
	ResetSchedule  string
	SettleSchedule string
	ResetTimeout   time.Duration
	SettleTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		ResetSchedule:  "@daily",
		SettleSchedule: "@every 5m",
		ResetTimeout:   10 * time.Minute,
		SettleTimeout:  time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:        cfg.Cron.SchedulerEnabled,
		ResetSchedule:  cfg.Cron.CreditResetSchedule,
		SettleSchedule: cfg.Cron.DeferredDebitSchedule,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ResetSchedule == "" {
		c.ResetSchedule = defaults.ResetSchedule
	}
	if c.SettleSchedule == "" {
		c.SettleSchedule = defaults.SettleSchedule
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = defaults.ResetTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = defaults.SettleTimeout
	}
	return c
}
