package main

import (
	"github.com/smallbiznis/promptly/internal/bootstrap"
	"github.com/smallbiznis/promptly/internal/migration"
	"github.com/smallbiznis/promptly/internal/pushmetrics"
	"github.com/smallbiznis/promptly/internal/scheduler"
	"github.com/smallbiznis/promptly/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infra,
		migration.Module,
		bootstrap.Domain,
		bootstrap.HTTP,
		pushmetrics.Module,

		// in-process cron, off when SCHEDULER_ENABLED=false
		scheduler.Run,

		server.Module,
	)
	app.Run()
}
