// Package entities defines the persisted data model for the realtime core.
package entities

import "time"

// Farm is the ownership scope for devices, rules, and live subscriptions.
type Farm struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Farm) TableName() string {
	return "farms"
}

// FarmMember links a user to a farm. Notification fan-out resolves farm
// membership through this table.
type FarmMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FarmID    string    `gorm:"size:64;not null;index" json:"farm_id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Role      string    `gorm:"size:32;default:'member'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (FarmMember) TableName() string {
	return "farm_members"
}
