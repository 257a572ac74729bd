package repository

import (
	"context"
	"time"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// RuleRepository persists alert rules and the alert firing history.
type RuleRepository interface {
	ListRules(ctx context.Context) ([]entities.AlertRule, error)
	GetEnabledRules(ctx context.Context) ([]entities.AlertRule, error)
	CreateRule(ctx context.Context, rule *entities.AlertRule) error
	DeleteRule(ctx context.Context, id uint) error

	SaveHistory(ctx context.Context, history *entities.AlertHistory) error
	ListHistory(ctx context.Context, farmID string, limit, offset int) ([]entities.AlertHistory, int64, error)
	DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error)
}
