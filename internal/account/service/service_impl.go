package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Grants domain.GrantResolver
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	grants domain.GrantResolver
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("account.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		grants: p.Grants,
	}
}

func (s *Service) EnsureAccount(ctx context.Context, req domain.EnsureAccountRequest) (domain.Account, bool, error) {
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return domain.Account{}, false, domain.ErrInvalidExternalID
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return domain.Account{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	grant, err := s.grants.GrantAmountFor(domain.PlanFree)
	if err != nil {
		return domain.Account{}, false, err
	}

	now := s.clock.Now()
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = externalID
	}
	account := domain.Account{
		ID:                  s.genID.Generate(),
		ExternalID:          externalID,
		Email:               email,
		Role:                domain.RoleMember,
		Credits:             grant,
		LastCreditResetDate: now,
		Plan:                domain.PlanFree,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, &account)
	if err != nil {
		return domain.Account{}, false, err
	}
	if !inserted {
		// Lost a provisioning race; the winner's row is authoritative.
		winner, err := s.repo.FindByExternalID(ctx, s.db, externalID)
		if err != nil {
			return domain.Account{}, false, err
		}
		if winner == nil {
			return domain.Account{}, false, domain.ErrNotFound
		}
		return *winner, false, nil
	}

	s.log.Info("account provisioned",
		zap.String("account_id", account.ID.String()),
		zap.Int64("credits", account.Credits),
	)
	return account, true, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Account, error) {
	accountID, err := ParseID(id)
	if err != nil {
		return domain.Account{}, err
	}
	return s.found(s.repo.FindByID(ctx, s.db, accountID))
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (domain.Account, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.Account{}, domain.ErrInvalidExternalID
	}
	return s.found(s.repo.FindByExternalID(ctx, s.db, externalID))
}

func (s *Service) GetByStripeCustomerID(ctx context.Context, customerID string) (domain.Account, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Account{}, domain.ErrNotFound
	}
	return s.found(s.repo.FindByStripeCustomerID(ctx, s.db, customerID))
}

func (s *Service) SetRole(ctx context.Context, id string, role domain.Role) error {
	accountID, err := ParseID(id)
	if err != nil {
		return err
	}
	switch role {
	case domain.RoleMember, domain.RoleAdmin:
	default:
		return domain.ErrInvalidRole
	}

	updated, err := s.repo.SetRole(ctx, s.db, accountID, role, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) CountByPlan(ctx context.Context) (map[domain.Plan]int64, error) {
	return s.repo.CountByPlan(ctx, s.db)
}

func (s *Service) found(account *domain.Account, err error) (domain.Account, error) {
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

// ParseID parses a snowflake account id.
func ParseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
