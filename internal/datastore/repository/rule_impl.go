package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// ruleRepository implements RuleRepository.
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

// ListRules returns all rules with their conditions and actions.
func (r *ruleRepository) ListRules(ctx context.Context) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	if err := r.db.WithContext(ctx).Preload("Conditions").Preload("Actions").
		Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

// GetEnabledRules returns enabled rules with their conditions and actions.
func (r *ruleRepository) GetEnabledRules(ctx context.Context) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	if err := r.db.WithContext(ctx).Preload("Conditions").Preload("Actions").
		Where("enabled = ?", true).Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled alert rules: %w", err)
	}
	return rules, nil
}

// CreateRule creates a rule with its conditions and actions.
func (r *ruleRepository) CreateRule(ctx context.Context, rule *entities.AlertRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

// DeleteRule deletes a rule; conditions and actions cascade.
func (r *ruleRepository) DeleteRule(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.AlertRule{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertRuleNotFound
	}
	return nil
}

// SaveHistory records one delivered alert.
func (r *ruleRepository) SaveHistory(ctx context.Context, history *entities.AlertHistory) error {
	if err := r.db.WithContext(ctx).Create(history).Error; err != nil {
		return fmt.Errorf("failed to save alert history: %w", err)
	}
	return nil
}

// ListHistory returns alert history newest first, optionally scoped to a farm.
func (r *ruleRepository) ListHistory(ctx context.Context, farmID string, limit, offset int) ([]entities.AlertHistory, int64, error) {
	var items []entities.AlertHistory
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&entities.AlertHistory{})
	if farmID != "" {
		countQuery = countQuery.Where("farm_id = ?", farmID)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert history: %w", err)
	}

	query := r.db.WithContext(ctx).Order("fired_at DESC")
	if farmID != "" {
		query = query.Where("farm_id = ?", farmID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert history: %w", err)
	}
	return items, total, nil
}

// DeleteHistoryBefore deletes history entries older than the given time.
func (r *ruleRepository) DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("fired_at < ?", before).Delete(&entities.AlertHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert history before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
