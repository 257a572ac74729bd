package entities

import "time"

// PushSubscription is one registered Web Push endpoint for a user. A user may
// hold several active subscriptions (one per browser/device). Delivery
// failures with a gone/expired status deactivate the subscription in place.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Endpoint  string    `gorm:"size:1024;not null" json:"endpoint"`
	P256dh    string    `gorm:"size:256;not null" json:"p256dh"`
	Auth      string    `gorm:"size:256;not null" json:"auth"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (PushSubscription) TableName() string {
	return "push_subscriptions"
}

// NotificationPreference controls whether a user receives pushes for one
// alert type. Absent preferences default-allow at medium priority and above.
type NotificationPreference struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:idx_pref_user_type,priority:1" json:"user_id"`
	AlertType   string    `gorm:"size:64;not null;uniqueIndex:idx_pref_user_type,priority:2" json:"alert_type"`
	Enabled     bool      `gorm:"not null;default:true" json:"enabled"`
	MinPriority string    `gorm:"size:16;not null;default:'low'" json:"min_priority"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}
