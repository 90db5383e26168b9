package domain

import (
	"context"
	"errors"
)

type Service interface {
	ListByAccount(ctx context.Context, accountID string) ([]Record, error)
	GetByProviderID(ctx context.Context, providerSubscriptionID string) (Record, error)
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrNotFound       = errors.New("subscription_not_found")
)
