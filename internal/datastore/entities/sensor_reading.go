package entities

import "time"

// SensorReading is one calibrated measurement from a device. Readings are
// immutable once written; only the ingestion pipeline creates them.
type SensorReading struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	DeviceID       uint      `gorm:"not null;index:idx_readings_device_time,priority:1" json:"device_id"`
	FarmID         string    `gorm:"size:64;not null;index" json:"farm_id"`
	SensorType     string    `gorm:"size:64;not null;index" json:"sensor_type"`
	Value          float64   `gorm:"not null" json:"value"`
	Unit           string    `gorm:"size:32;default:''" json:"unit"`
	ReadingTime    time.Time `gorm:"not null;index:idx_readings_device_time,priority:2" json:"reading_time"`
	BatteryLevel   *float64  `json:"battery_level,omitempty"`
	SignalStrength *float64  `json:"signal_strength,omitempty"`
	QualityScore   *float64  `json:"quality_score,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (SensorReading) TableName() string {
	return "sensor_readings"
}
