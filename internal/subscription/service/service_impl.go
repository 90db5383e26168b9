package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("subscription.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]domain.Record, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(accountID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidAccount
	}
	records, err := s.repo.ListByAccount(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

func (s *Service) GetByProviderID(ctx context.Context, providerSubscriptionID string) (domain.Record, error) {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return domain.Record{}, domain.ErrNotFound
	}
	record, err := s.repo.FindByProviderID(ctx, s.db, providerSubscriptionID)
	if err != nil {
		return domain.Record{}, err
	}
	if record == nil {
		return domain.Record{}, domain.ErrNotFound
	}
	return *record, nil
}
