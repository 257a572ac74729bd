package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// deviceRepository implements DeviceRepository.
type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

// Create registers a new device, enforcing external-ID uniqueness.
func (r *deviceRepository) Create(ctx context.Context, device *entities.SensorDevice) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.SensorDevice{}).
		Where("device_id = ?", device.DeviceID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check device uniqueness: %w", err)
	}
	if count > 0 {
		return ErrDeviceExists
	}
	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		return fmt.Errorf("failed to create device %s: %w", device.DeviceID, err)
	}
	return nil
}

// FindByDeviceID looks up a device by external ID.
func (r *deviceRepository) FindByDeviceID(ctx context.Context, deviceID string) (*entities.SensorDevice, error) {
	var device entities.SensorDevice
	if err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to find device %s: %w", deviceID, err)
	}
	return &device, nil
}

// Save persists device configuration changes.
func (r *deviceRepository) Save(ctx context.Context, device *entities.SensorDevice) error {
	if err := r.db.WithContext(ctx).Save(device).Error; err != nil {
		return fmt.Errorf("failed to save device %s: %w", device.DeviceID, err)
	}
	return nil
}

// ListByFarm returns a farm's devices, optionally narrowed by sensor type.
func (r *deviceRepository) ListByFarm(ctx context.Context, farmID, sensorType string, activeOnly bool) ([]entities.SensorDevice, error) {
	var devices []entities.SensorDevice
	query := r.db.WithContext(ctx).Where("farm_id = ?", farmID)
	if sensorType != "" {
		query = query.Where("sensor_type = ?", sensorType)
	}
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Order("device_id ASC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices for farm %s: %w", farmID, err)
	}
	return devices, nil
}

// Deactivate flips the active flag off and returns the updated record.
func (r *deviceRepository) Deactivate(ctx context.Context, deviceID string) (*entities.SensorDevice, error) {
	device, err := r.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	device.Active = false
	if err := r.db.WithContext(ctx).Model(device).Update("active", false).Error; err != nil {
		return nil, fmt.Errorf("failed to deactivate device %s: %w", deviceID, err)
	}
	return device, nil
}
