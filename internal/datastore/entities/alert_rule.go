package entities

import "time"

// AlertRule defines a configurable alerting rule evaluated periodically
// against recent readings. A rule with an empty FarmID applies to every
// active farm.
type AlertRule struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Name        string           `gorm:"size:255;not null" json:"name"`
	FarmID      string           `gorm:"size:64;default:'';index" json:"farm_id"`
	RuleType    string           `gorm:"size:32;not null;index" json:"rule_type"`
	Severity    string           `gorm:"size:16;not null;default:'medium'" json:"severity"`
	Enabled     bool             `gorm:"not null;index" json:"enabled"`
	BuiltIn     bool             `gorm:"not null;default:false" json:"built_in"`
	CooldownSec int              `gorm:"not null;default:1800" json:"cooldown_sec"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	Conditions  []AlertCondition `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"conditions"`
	Actions     []AlertAction    `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"actions"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}

// AlertCondition is a single threshold predicate within a rule. Conditions in
// a rule use OR logic: the first condition satisfied by any matching device
// fires the rule.
type AlertCondition struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	RuleID     uint     `gorm:"not null;index" json:"rule_id"`
	SensorType string   `gorm:"size:64;not null" json:"sensor_type"`
	Operator   string   `gorm:"size:16;not null" json:"operator"`
	Value      float64  `gorm:"not null" json:"value"`
	ValueHigh  *float64 `json:"value_high,omitempty"`
	SustainSec int      `gorm:"default:0" json:"sustain_sec"`
	SortOrder  int      `gorm:"default:0" json:"sort_order"`
}

// TableName returns the table name for GORM.
func (AlertCondition) TableName() string {
	return "alert_conditions"
}

// AlertAction selects a delivery channel for a fired rule.
// Channel is "broadcast" (live rooms) or "push" (notification dispatcher).
type AlertAction struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RuleID    uint   `gorm:"not null;index" json:"rule_id"`
	Channel   string `gorm:"size:32;not null" json:"channel"`
	Enabled   bool   `gorm:"not null;default:true" json:"enabled"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
}

// TableName returns the table name for GORM.
func (AlertAction) TableName() string {
	return "alert_actions"
}
