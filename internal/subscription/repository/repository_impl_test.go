package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/promptly/internal/subscription/domain"
	"github.com/smallbiznis/promptly/pkg/db/dbtest"
	"gorm.io/datatypes"
)

func TestUpsertKeyedByProviderSubscriptionID(t *testing.T) {
	db := dbtest.Open(t, dbtest.SubscriptionsDDL)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := now.AddDate(0, 1, 0)

	record := &domain.Record{
		ID:                     1,
		AccountID:              10,
		Provider:               "stripe",
		ProviderSubscriptionID: "sub_1",
		ProviderCustomerID:     "cus_1",
		Plan:                   "pro",
		Status:                 domain.StatusActive,
		CurrentPeriodStart:     &now,
		CurrentPeriodEnd:       &periodEnd,
		Metadata:               datatypes.JSONMap{"planId": "pro"},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := repo.Upsert(ctx, db, record); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	later := now.Add(time.Hour)
	update := *record
	update.ID = 2
	update.Plan = "elite"
	update.Status = domain.StatusPastDue
	update.UpdatedAt = later
	if err := repo.Upsert(ctx, db, &update); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	redelivered := update
	redelivered.ID = 3
	redelivered.UpdatedAt = later.Add(time.Hour)
	if err := repo.Upsert(ctx, db, &redelivered); err != nil {
		t.Fatalf("repeated upsert: %v", err)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM subscriptions`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}

	got, err := repo.FindByProviderID(ctx, db, "sub_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil {
		t.Fatalf("expected record")
	}
	if got.ID != 1 {
		t.Fatalf("expected original id to survive, got %d", got.ID)
	}
	if got.Plan != "elite" || got.Status != domain.StatusPastDue {
		t.Fatalf("expected refreshed plan/status, got %s/%s", got.Plan, got.Status)
	}
	if got.Metadata["planId"] != "pro" {
		t.Fatalf("expected metadata to round trip, got %v", got.Metadata)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("expected unchanged refresh to keep updated_at %s, got %s", later, got.UpdatedAt)
	}
}

func TestMarkCanceled(t *testing.T) {
	db := dbtest.Open(t, dbtest.SubscriptionsDDL)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	ok, err := repo.MarkCanceled(ctx, db, "sub_missing", now)
	if err != nil {
		t.Fatalf("mark missing: %v", err)
	}
	if ok {
		t.Fatalf("expected no row to be touched")
	}

	if err := repo.Upsert(ctx, db, &domain.Record{
		ID:                     5,
		AccountID:              10,
		Provider:               "stripe",
		ProviderSubscriptionID: "sub_5",
		ProviderCustomerID:     "cus_5",
		Plan:                   "pro",
		Status:                 domain.StatusActive,
		CreatedAt:              now,
		UpdatedAt:              now,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ok, err = repo.MarkCanceled(ctx, db, "sub_5", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("mark canceled: %v", err)
	}
	if !ok {
		t.Fatalf("expected row to be canceled")
	}

	if err := repo.Upsert(ctx, db, &domain.Record{
		ID:                     6,
		AccountID:              10,
		Provider:               "stripe",
		ProviderSubscriptionID: "sub_5",
		ProviderCustomerID:     "cus_5",
		Plan:                   "elite",
		Status:                 domain.StatusActive,
		CreatedAt:              now,
		UpdatedAt:              now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("upsert after cancel: %v", err)
	}

	records, err := repo.ListByAccount(ctx, db, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Status != domain.StatusCanceled || records[0].CanceledAt == nil || records[0].Plan != "pro" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
