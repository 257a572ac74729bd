package entities

import "time"

// SensorDevice is a registered field sensor. Devices are never hard-deleted;
// deactivation flips the Active flag and removes the device from liveness
// tracking.
type SensorDevice struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	DeviceID          string     `gorm:"size:128;not null;uniqueIndex" json:"device_id"`
	FarmID            string     `gorm:"size:64;not null;index" json:"farm_id"`
	SensorType        string     `gorm:"size:64;not null;index" json:"sensor_type"`
	Location          string     `gorm:"size:255;default:''" json:"location"`
	Unit              string     `gorm:"size:32;default:''" json:"unit"`
	MinThreshold      *float64   `json:"min_threshold,omitempty"`
	MaxThreshold      *float64   `json:"max_threshold,omitempty"`
	CalibrationOffset float64    `gorm:"not null;default:0" json:"calibration_offset"`
	AlertEnabled      bool       `gorm:"not null;default:true" json:"alert_enabled"`
	Active            bool       `gorm:"not null;default:true;index" json:"active"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (SensorDevice) TableName() string {
	return "sensor_devices"
}
