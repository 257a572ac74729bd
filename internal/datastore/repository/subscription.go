package repository

import (
	"context"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// SubscriptionRepository persists push subscriptions and notification
// preferences for the dispatcher.
type SubscriptionRepository interface {
	// UpsertSubscription registers an endpoint for a user, reactivating it if
	// the same endpoint was previously deactivated.
	UpsertSubscription(ctx context.Context, sub *entities.PushSubscription) error
	// DeactivateSubscription marks a user's endpoint inactive. Returns
	// ErrSubscriptionNotFound if no matching endpoint exists.
	DeactivateSubscription(ctx context.Context, userID, endpoint string) error
	// ActiveForUser returns a user's active subscriptions.
	ActiveForUser(ctx context.Context, userID string) ([]entities.PushSubscription, error)

	// UpsertPreferences replaces the given (alert type → preference) tuples
	// for a user. Idempotent.
	UpsertPreferences(ctx context.Context, userID string, prefs []entities.NotificationPreference) error
	// PreferenceFor returns a user's preference for one alert type, or nil if
	// none is stored.
	PreferenceFor(ctx context.Context, userID, alertType string) (*entities.NotificationPreference, error)
}
