package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// subscriptionRepository implements SubscriptionRepository.
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// UpsertSubscription matches by (user, endpoint) identity within the user's
// subscription set and reactivates or inserts.
func (r *subscriptionRepository) UpsertSubscription(ctx context.Context, sub *entities.PushSubscription) error {
	var existing entities.PushSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", sub.UserID, sub.Endpoint).
		First(&existing).Error
	switch {
	case err == nil:
		existing.P256dh = sub.P256dh
		existing.Auth = sub.Auth
		existing.Active = true
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to reactivate subscription for user %s: %w", sub.UserID, err)
		}
		*sub = existing
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub.Active = true
		if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription for user %s: %w", sub.UserID, err)
		}
		return nil
	default:
		return fmt.Errorf("failed to look up subscription for user %s: %w", sub.UserID, err)
	}
}

// DeactivateSubscription marks a user's endpoint inactive.
func (r *subscriptionRepository) DeactivateSubscription(ctx context.Context, userID, endpoint string) error {
	result := r.db.WithContext(ctx).Model(&entities.PushSubscription{}).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate subscription for user %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ActiveForUser returns the user's active subscriptions.
func (r *subscriptionRepository) ActiveForUser(ctx context.Context, userID string) ([]entities.PushSubscription, error) {
	var subs []entities.PushSubscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for user %s: %w", userID, err)
	}
	return subs, nil
}

// UpsertPreferences replaces the given preference tuples for a user.
func (r *subscriptionRepository) UpsertPreferences(ctx context.Context, userID string, prefs []entities.NotificationPreference) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range prefs {
			prefs[i].UserID = userID
			var existing entities.NotificationPreference
			err := tx.Where("user_id = ? AND alert_type = ?", userID, prefs[i].AlertType).
				First(&existing).Error
			switch {
			case err == nil:
				existing.Enabled = prefs[i].Enabled
				existing.MinPriority = prefs[i].MinPriority
				if err := tx.Save(&existing).Error; err != nil {
					return fmt.Errorf("failed to update preference %s/%s: %w", userID, prefs[i].AlertType, err)
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&prefs[i]).Error; err != nil {
					return fmt.Errorf("failed to create preference %s/%s: %w", userID, prefs[i].AlertType, err)
				}
			default:
				return fmt.Errorf("failed to look up preference %s/%s: %w", userID, prefs[i].AlertType, err)
			}
		}
		return nil
	})
}

// PreferenceFor returns the stored preference or nil when absent.
func (r *subscriptionRepository) PreferenceFor(ctx context.Context, userID, alertType string) (*entities.NotificationPreference, error) {
	var pref entities.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND alert_type = ?", userID, alertType).
		First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up preference %s/%s: %w", userID, alertType, err)
	}
	return &pref, nil
}
