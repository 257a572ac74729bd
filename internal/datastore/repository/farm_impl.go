package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// farmRepository implements FarmRepository.
type farmRepository struct {
	db *gorm.DB
}

// NewFarmRepository creates a new FarmRepository.
func NewFarmRepository(db *gorm.DB) FarmRepository {
	return &farmRepository{db: db}
}

// Exists reports whether an active farm with the given ID is present.
func (r *farmRepository) Exists(ctx context.Context, farmID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Farm{}).
		Where("id = ? AND active = ?", farmID, true).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check farm %s: %w", farmID, err)
	}
	return count > 0, nil
}

// ListActiveIDs returns all active farm IDs.
func (r *farmRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&entities.Farm{}).
		Where("active = ?", true).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list active farms: %w", err)
	}
	return ids, nil
}

// MembersOf returns the user IDs with membership in a farm.
func (r *farmRepository) MembersOf(ctx context.Context, farmID string) ([]string, error) {
	var userIDs []string
	if err := r.db.WithContext(ctx).Model(&entities.FarmMember{}).
		Where("farm_id = ?", farmID).Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve members of farm %s: %w", farmID, err)
	}
	return userIDs, nil
}

// Seed inserts a farm if it does not already exist.
func (r *farmRepository) Seed(ctx context.Context, farm *entities.Farm) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(farm).Error; err != nil {
		return fmt.Errorf("failed to seed farm %s: %w", farm.ID, err)
	}
	return nil
}
