package reconciler

import (
	"github.com/smallbiznis/promptly/internal/reconciler/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciler.service",
	fx.Provide(service.NewLogAlerter),
	fx.Provide(service.NewService),
)
