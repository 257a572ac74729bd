package repository

import (
	"context"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// DeviceRepository handles sensor device records.
type DeviceRepository interface {
	// Create registers a new device. Returns ErrDeviceExists if the external
	// device ID is already registered.
	Create(ctx context.Context, device *entities.SensorDevice) error
	// FindByDeviceID looks up a device by its stable external ID.
	FindByDeviceID(ctx context.Context, deviceID string) (*entities.SensorDevice, error)
	// Save persists configuration changes (calibration, thresholds, flags).
	Save(ctx context.Context, device *entities.SensorDevice) error
	// ListByFarm returns devices for a farm, optionally filtered by sensor
	// type. Inactive devices are excluded when activeOnly is set.
	ListByFarm(ctx context.Context, farmID, sensorType string, activeOnly bool) ([]entities.SensorDevice, error)
	// Deactivate flips the active flag off. Returns ErrDeviceNotFound if the
	// device does not exist.
	Deactivate(ctx context.Context, deviceID string) (*entities.SensorDevice, error)
}
