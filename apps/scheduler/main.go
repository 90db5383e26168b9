package main

import (
	"github.com/smallbiznis/promptly/internal/bootstrap"
	"github.com/smallbiznis/promptly/internal/scheduler"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infra,
		bootstrap.Domain,

		// no HTTP surface; cron only
		fx.Decorate(func(cfg scheduler.Config) scheduler.Config {
			cfg.Enabled = true
			return cfg
		}),
		scheduler.Run,
	)
	app.Run()
}
