package domain

import (
	"context"
	"errors"
)

type EnsureAccountRequest struct {
	ExternalID string
	Email      string
}

// GrantResolver yields the credits a plan starts each cycle with.
type GrantResolver interface {
	GrantAmountFor(plan Plan) (int64, error)
}

type Service interface {
	// EnsureAccount returns the account for an external identity, creating a
	// free account with the free grant the first time the identity is seen.
	EnsureAccount(ctx context.Context, req EnsureAccountRequest) (Account, bool, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByExternalID(ctx context.Context, externalID string) (Account, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (Account, error)
	SetRole(ctx context.Context, id string, role Role) error
	CountByPlan(ctx context.Context) (map[Plan]int64, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidExternalID = errors.New("invalid_external_id")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrNotFound          = errors.New("account_not_found")
)
