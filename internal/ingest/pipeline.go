// Package ingest implements the sensor ingestion pipeline: validation,
// calibration, persistence, status tracking, live broadcast, and the
// synchronous fast-path alert check.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/observability"
	"github.com/terrasense/terrasense-go/internal/status"
)

// ErrInvalidPayload marks malformed ingestion payloads. API boundaries
// translate it to a 400 response.
var ErrInvalidPayload = errors.New("invalid payload")

// Live event names emitted by the pipeline.
const (
	EventDeviceRegistered  = "device_registered"
	EventSensorCalibrated  = "sensor_calibrated"
	EventDeviceDeactivated = "device_deactivated"
)

// DeviceSpec describes a device registration request.
type DeviceSpec struct {
	DeviceID          string   `json:"device_id"`
	FarmID            string   `json:"farm_id"`
	SensorType        string   `json:"sensor_type"`
	Location          string   `json:"location"`
	Unit              string   `json:"unit"`
	MinThreshold      *float64 `json:"min_threshold,omitempty"`
	MaxThreshold      *float64 `json:"max_threshold,omitempty"`
	CalibrationOffset float64  `json:"calibration_offset"`
	AlertEnabled      bool     `json:"alert_enabled"`
}

// ReadingPayload is one raw reading submitted by a field gateway.
type ReadingPayload struct {
	DeviceID       string     `json:"device_id"`
	Value          float64    `json:"value"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	BatteryLevel   *float64   `json:"battery_level,omitempty"`
	SignalStrength *float64   `json:"signal_strength,omitempty"`
	QualityScore   *float64   `json:"quality_score,omitempty"`
}

// Calibration recomputes a device's calibration offset from a reference
// measurement taken alongside the device's own observation.
type Calibration struct {
	DeviceID       string  `json:"device_id"`
	ReferenceValue float64 `json:"reference_value"`
	ObservedValue  float64 `json:"observed_value"`
}

// LiveBroadcaster pushes telemetry and device lifecycle events to live
// connections. Implemented by the realtime hub.
type LiveBroadcaster interface {
	BroadcastTelemetry(reading *entities.SensorReading, device *entities.SensorDevice)
	BroadcastDeviceEvent(farmID, event string, data map[string]any)
}

// ThresholdChecker is the engine's synchronous fast-path check against the
// device's static thresholds.
type ThresholdChecker interface {
	HandleReading(ctx context.Context, device *entities.SensorDevice, reading *entities.SensorReading) *alerting.Alert
}

// Config wires the pipeline's collaborators and tuning knobs.
type Config struct {
	Devices  repository.DeviceRepository
	Readings repository.ReadingRepository
	Farms    repository.FarmRepository
	Tracker  *status.Tracker

	Hub     LiveBroadcaster
	Checker ThresholdChecker
	Log     *zap.Logger

	// DrainInterval is the queue drain period; DrainChunkSize bounds how
	// many queued readings one drain pass ingests.
	DrainInterval  time.Duration
	DrainChunkSize int
	// DeviceCacheTTL bounds staleness of the device lookup cache on the
	// ingestion hot path.
	DeviceCacheTTL time.Duration
}

// Pipeline is the sensor ingestion pipeline.
type Pipeline struct {
	cfg Config

	deviceCache *gocache.Cache

	queue   []ReadingPayload
	queueMu sync.Mutex
}

// NewPipeline creates the ingestion pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		deviceCache: gocache.New(cfg.DeviceCacheTTL, 2*cfg.DeviceCacheTTL),
	}
}

// RegisterDevice creates a SensorDevice, initializes its status entry, and
// emits a device-registered live event. Fails with
// repository.ErrDeviceExists on a duplicate device ID and
// repository.ErrFarmNotFound when the owning farm does not exist.
func (p *Pipeline) RegisterDevice(ctx context.Context, spec DeviceSpec) (*entities.SensorDevice, error) {
	if spec.DeviceID == "" || spec.FarmID == "" || spec.SensorType == "" {
		return nil, fmt.Errorf("%w: device_id, farm_id and sensor_type are required", ErrInvalidPayload)
	}
	exists, err := p.cfg.Farms.Exists(ctx, spec.FarmID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrFarmNotFound
	}

	device := &entities.SensorDevice{
		DeviceID:          spec.DeviceID,
		FarmID:            spec.FarmID,
		SensorType:        spec.SensorType,
		Location:          spec.Location,
		Unit:              spec.Unit,
		MinThreshold:      spec.MinThreshold,
		MaxThreshold:      spec.MaxThreshold,
		CalibrationOffset: spec.CalibrationOffset,
		AlertEnabled:      spec.AlertEnabled,
		Active:            true,
	}
	if err := p.cfg.Devices.Create(ctx, device); err != nil {
		return nil, err
	}

	offline := false
	p.cfg.Tracker.Upsert(device.DeviceID, status.Update{Online: &offline})
	p.broadcastDeviceEvent(device.FarmID, EventDeviceRegistered, map[string]any{
		"device_id":   device.DeviceID,
		"sensor_type": device.SensorType,
		"location":    device.Location,
	})
	p.cfg.Log.Info("device registered",
		zap.String("device_id", device.DeviceID),
		zap.String("farm_id", device.FarmID))
	return device, nil
}

// IngestReading validates and calibrates one reading, persists it, updates
// the status tracker, broadcasts it, and runs the fast-path alert check.
// The stored value is raw + the device's calibration offset.
func (p *Pipeline) IngestReading(ctx context.Context, payload ReadingPayload) (*entities.SensorReading, error) {
	if payload.DeviceID == "" {
		observability.IngestFailures.Inc()
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidPayload)
	}
	device, err := p.lookupDevice(ctx, payload.DeviceID)
	if err != nil {
		observability.IngestFailures.Inc()
		return nil, err
	}

	readingTime := time.Now()
	if payload.Timestamp != nil {
		readingTime = *payload.Timestamp
	}
	reading := &entities.SensorReading{
		DeviceID:       device.ID,
		FarmID:         device.FarmID,
		SensorType:     device.SensorType,
		Value:          payload.Value + device.CalibrationOffset,
		Unit:           device.Unit,
		ReadingTime:    readingTime,
		BatteryLevel:   payload.BatteryLevel,
		SignalStrength: payload.SignalStrength,
		QualityScore:   payload.QualityScore,
	}
	if err := p.cfg.Readings.Save(ctx, reading); err != nil {
		observability.IngestFailures.Inc()
		return nil, err
	}

	// Work on a copy so the cached record is never mutated concurrently.
	now := time.Now()
	seen := *device
	seen.LastSeenAt = &now
	if err := p.cfg.Devices.Save(ctx, &seen); err != nil {
		p.cfg.Log.Warn("failed to persist device last-seen",
			zap.String("device_id", device.DeviceID), zap.Error(err))
	}

	online := true
	p.cfg.Tracker.Upsert(device.DeviceID, status.Update{
		Online:         &online,
		LastSeenAt:     &now,
		BatteryLevel:   payload.BatteryLevel,
		SignalStrength: payload.SignalStrength,
	})

	if p.cfg.Hub != nil {
		p.cfg.Hub.BroadcastTelemetry(reading, device)
	}
	if p.cfg.Checker != nil {
		p.cfg.Checker.HandleReading(ctx, device, reading)
	}

	observability.ReadingsIngested.Inc()
	return reading, nil
}

// IngestBatch applies IngestReading to each payload independently. One bad
// record is logged and skipped, never propagated. Returns the number of
// readings ingested.
func (p *Pipeline) IngestBatch(ctx context.Context, payloads []ReadingPayload) int {
	var ok int
	for i := range payloads {
		if _, err := p.IngestReading(ctx, payloads[i]); err != nil {
			p.cfg.Log.Warn("skipping bad reading in batch",
				zap.String("device_id", payloads[i].DeviceID),
				zap.Error(err))
			continue
		}
		ok++
	}
	return ok
}

// Enqueue buffers a reading for the next drain pass. The queue is unbounded;
// the drain loop decouples bursty producers from the persistence path.
func (p *Pipeline) Enqueue(payload ReadingPayload) {
	p.queueMu.Lock()
	p.queue = append(p.queue, payload)
	depth := len(p.queue)
	p.queueMu.Unlock()
	observability.QueueDepth.Set(float64(depth))
}

// QueueDepth returns the number of queued readings awaiting drain.
func (p *Pipeline) QueueDepth() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// Start runs the drain loop until the context is cancelled, then drains all
// remaining queued work so a graceful shutdown drops nothing.
func (p *Pipeline) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.drainChunk(ctx)
		case <-ctx.Done():
			p.drainAll(context.Background())
			return
		}
	}
}

// drainChunk ingests up to DrainChunkSize queued readings.
func (p *Pipeline) drainChunk(ctx context.Context) {
	p.queueMu.Lock()
	n := len(p.queue)
	if n == 0 {
		p.queueMu.Unlock()
		return
	}
	if n > p.cfg.DrainChunkSize {
		n = p.cfg.DrainChunkSize
	}
	chunk := make([]ReadingPayload, n)
	copy(chunk, p.queue[:n])
	p.queue = p.queue[n:]
	depth := len(p.queue)
	p.queueMu.Unlock()

	observability.QueueDepth.Set(float64(depth))
	p.IngestBatch(ctx, chunk)
}

// drainAll flushes the whole queue in chunks. Called once on shutdown.
func (p *Pipeline) drainAll(ctx context.Context) {
	for p.QueueDepth() > 0 {
		p.drainChunk(ctx)
	}
}

// CalibrateDevice recomputes the device's calibration offset from a
// reference measurement: offset = reference − observed.
func (p *Pipeline) CalibrateDevice(ctx context.Context, calibration Calibration) (*entities.SensorDevice, error) {
	if calibration.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidPayload)
	}
	device, err := p.cfg.Devices.FindByDeviceID(ctx, calibration.DeviceID)
	if err != nil {
		return nil, err
	}
	device.CalibrationOffset = calibration.ReferenceValue - calibration.ObservedValue
	if err := p.cfg.Devices.Save(ctx, device); err != nil {
		return nil, err
	}
	p.deviceCache.Delete(device.DeviceID)

	p.broadcastDeviceEvent(device.FarmID, EventSensorCalibrated, map[string]any{
		"device_id": device.DeviceID,
		"offset":    device.CalibrationOffset,
	})
	p.cfg.Log.Info("device calibrated",
		zap.String("device_id", device.DeviceID),
		zap.Float64("offset", device.CalibrationOffset))
	return device, nil
}

// DeactivateDevice flips the device inactive, removes it from status
// tracking, and emits a device-deactivated live event.
func (p *Pipeline) DeactivateDevice(ctx context.Context, deviceID string) error {
	device, err := p.cfg.Devices.Deactivate(ctx, deviceID)
	if err != nil {
		return err
	}
	p.cfg.Tracker.Remove(deviceID)
	p.deviceCache.Delete(deviceID)

	p.broadcastDeviceEvent(device.FarmID, EventDeviceDeactivated, map[string]any{
		"device_id": deviceID,
	})
	p.cfg.Log.Info("device deactivated", zap.String("device_id", deviceID))
	return nil
}

// lookupDevice resolves an active device by external ID through the TTL
// cache. Inactive devices are reported as not found.
func (p *Pipeline) lookupDevice(ctx context.Context, deviceID string) (*entities.SensorDevice, error) {
	if cached, ok := p.deviceCache.Get(deviceID); ok {
		return cached.(*entities.SensorDevice), nil
	}
	device, err := p.cfg.Devices.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.Active {
		return nil, repository.ErrDeviceNotFound
	}
	p.deviceCache.Set(deviceID, device, gocache.DefaultExpiration)
	return device, nil
}

func (p *Pipeline) broadcastDeviceEvent(farmID, event string, data map[string]any) {
	if p.cfg.Hub == nil {
		p.cfg.Log.Warn("broadcast hub not configured, dropping device event",
			zap.String("event", event))
		return
	}
	p.cfg.Hub.BroadcastDeviceEvent(farmID, event, data)
}
