package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
)

// SubscriptionStore records the app-store receipt that unlocks paid features
// for a household.
type SubscriptionStore struct {
	db database.DBTX
}

func NewSubscriptionStore(db database.DBTX) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Upsert(ctx context.Context, householdID int64, provider, subscriptionID string) (*model.Subscription, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (household_id, provider, subscription_id) VALUES (?, ?, ?)
		 ON CONFLICT(household_id) DO UPDATE SET provider = excluded.provider,
		   subscription_id = excluded.subscription_id, updated_at = CURRENT_TIMESTAMP`,
		householdID, provider, subscriptionID,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return s.GetByHousehold(ctx, householdID)
}

func (s *SubscriptionStore) GetByHousehold(ctx context.Context, householdID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.QueryRowContext(ctx,
		`SELECT id, household_id, provider, subscription_id, created_at, updated_at
		 FROM subscriptions WHERE household_id = ?`, householdID,
	).Scan(&sub.ID, &sub.HouseholdID, &sub.Provider, &sub.SubscriptionID, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// IsActive reports whether the household holds a subscription.
func (s *SubscriptionStore) IsActive(ctx context.Context, householdID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE household_id = ?`, householdID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return count > 0, nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, householdID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE household_id = ?`, householdID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
