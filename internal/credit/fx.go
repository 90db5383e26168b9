package credit

import (
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/smallbiznis/promptly/internal/credit/repository"
	"github.com/smallbiznis/promptly/internal/credit/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("credit.service",
	fx.Provide(newPlanCatalog),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(svc domain.Service) accountdomain.GrantResolver { return svc }),
)

func newPlanCatalog(cfg config.Config, log *zap.Logger) (*config.PlanCatalogHolder, error) {
	return config.NewPlanCatalogHolder(cfg, domain.DefaultCatalog(), log)
}
