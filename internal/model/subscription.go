package model

import "time"

const (
	ProviderGooglePlay = "google-play"
	ProviderAppStore   = "app-store"
)

// Subscription is a household's paid plan receipt from an app store.
type Subscription struct {
	ID             int64     `json:"id"`
	HouseholdID    int64     `json:"household_id"`
	Provider       string    `json:"provider"`
	SubscriptionID string    `json:"subscription_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
