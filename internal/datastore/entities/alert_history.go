package entities

import "time"

// AlertHistory records each alert delivered by the engine, including manual
// triggers (RuleID zero).
type AlertHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AlertID   string    `gorm:"size:64;not null;index" json:"alert_id"`
	RuleID    uint      `gorm:"index:idx_alert_history_rule_fired,priority:1" json:"rule_id"`
	FarmID    string    `gorm:"size:64;not null;index" json:"farm_id"`
	AlertType string    `gorm:"size:64;not null" json:"alert_type"`
	Severity  string    `gorm:"size:16;not null" json:"severity"`
	Title     string    `gorm:"size:255;default:''" json:"title"`
	Message   string    `gorm:"size:2000;default:''" json:"message"`
	Payload   string    `gorm:"type:text;default:''" json:"payload"`
	FiredAt   time.Time `gorm:"not null;index:idx_alert_history_rule_fired,priority:2" json:"fired_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertHistory) TableName() string {
	return "alert_history"
}
