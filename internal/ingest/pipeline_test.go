package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/status"
)

func floatPtr(v float64) *float64 { return &v }

// mockDeviceRepo is an in-memory DeviceRepository keyed by external device ID.
type mockDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*entities.SensorDevice
	nextID  uint
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[string]*entities.SensorDevice), nextID: 1}
}

func (m *mockDeviceRepo) Create(_ context.Context, device *entities.SensorDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[device.DeviceID]; exists {
		return repository.ErrDeviceExists
	}
	device.ID = m.nextID
	m.nextID++
	stored := *device
	m.devices[device.DeviceID] = &stored
	return nil
}

func (m *mockDeviceRepo) FindByDeviceID(_ context.Context, deviceID string) (*entities.SensorDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device, ok := m.devices[deviceID]
	if !ok {
		return nil, repository.ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (m *mockDeviceRepo) Save(_ context.Context, device *entities.SensorDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *device
	m.devices[device.DeviceID] = &stored
	return nil
}

func (m *mockDeviceRepo) ListByFarm(_ context.Context, farmID, sensorType string, activeOnly bool) ([]entities.SensorDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.SensorDevice
	for _, device := range m.devices {
		if device.FarmID != farmID {
			continue
		}
		if sensorType != "" && device.SensorType != sensorType {
			continue
		}
		if activeOnly && !device.Active {
			continue
		}
		out = append(out, *device)
	}
	return out, nil
}

func (m *mockDeviceRepo) Deactivate(_ context.Context, deviceID string) (*entities.SensorDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device, ok := m.devices[deviceID]
	if !ok {
		return nil, repository.ErrDeviceNotFound
	}
	device.Active = false
	copied := *device
	return &copied, nil
}

// mockReadingStore records saved readings.
type mockReadingStore struct {
	mu     sync.Mutex
	stored []entities.SensorReading
}

func (m *mockReadingStore) Save(_ context.Context, reading *entities.SensorReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, *reading)
	return nil
}

func (m *mockReadingStore) FindInWindow(context.Context, string, string, time.Time) ([]entities.SensorReading, error) {
	return nil, nil
}

func (m *mockReadingStore) LatestPerDevice(context.Context, string, string, time.Time) ([]entities.SensorReading, error) {
	return nil, nil
}

func (m *mockReadingStore) ListForDevice(context.Context, uint, int) ([]entities.SensorReading, error) {
	return nil, nil
}

func (m *mockReadingStore) Aggregate(context.Context, string, string, repository.AggregationBucket, time.Time) ([]repository.AggregatedReading, error) {
	return nil, nil
}

func (m *mockReadingStore) Stats(context.Context, string, string, time.Time) (*repository.ReadingStats, error) {
	return nil, nil
}

func (m *mockReadingStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func (m *mockReadingStore) last() *entities.SensorReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stored) == 0 {
		return nil
	}
	reading := m.stored[len(m.stored)-1]
	return &reading
}

// mockFarmStore serves a fixed farm set.
type mockFarmStore struct {
	ids []string
}

func (m *mockFarmStore) Exists(_ context.Context, farmID string) (bool, error) {
	for _, id := range m.ids {
		if id == farmID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockFarmStore) ListActiveIDs(context.Context) ([]string, error) { return m.ids, nil }
func (m *mockFarmStore) MembersOf(context.Context, string) ([]string, error) {
	return nil, nil
}
func (m *mockFarmStore) Seed(context.Context, *entities.Farm) error { return nil }

// mockHub records broadcast calls.
type mockHub struct {
	mu        sync.Mutex
	telemetry int
	events    []string
}

func (m *mockHub) BroadcastTelemetry(*entities.SensorReading, *entities.SensorDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.telemetry++
}

func (m *mockHub) BroadcastDeviceEvent(_, event string, _ map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// mockChecker records fast-path invocations.
type mockChecker struct {
	mu    sync.Mutex
	calls int
}

func (m *mockChecker) HandleReading(context.Context, *entities.SensorDevice, *entities.SensorReading) *alerting.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	devices  *mockDeviceRepo
	readings *mockReadingStore
	tracker  *status.Tracker
	hub      *mockHub
	checker  *mockChecker
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		devices:  newMockDeviceRepo(),
		readings: &mockReadingStore{},
		tracker:  status.NewTracker(),
		hub:      &mockHub{},
		checker:  &mockChecker{},
	}
	f.pipeline = NewPipeline(Config{
		Devices:        f.devices,
		Readings:       f.readings,
		Farms:          &mockFarmStore{ids: []string{"farm-1"}},
		Tracker:        f.tracker,
		Hub:            f.hub,
		Checker:        f.checker,
		Log:            zap.NewNop(),
		DrainInterval:  5 * time.Second,
		DrainChunkSize: 50,
		DeviceCacheTTL: time.Minute,
	})
	return f
}

func (f *pipelineFixture) register(t *testing.T, deviceID string, offset float64) *entities.SensorDevice {
	t.Helper()
	device, err := f.pipeline.RegisterDevice(context.Background(), DeviceSpec{
		DeviceID:          deviceID,
		FarmID:            "farm-1",
		SensorType:        "temperature",
		Unit:              "°C",
		CalibrationOffset: offset,
		AlertEnabled:      true,
	})
	require.NoError(t, err)
	return device
}

func TestRegisterDevice(t *testing.T) {
	f := newPipelineFixture(t)

	device := f.register(t, "sensor-1", 0)

	assert.True(t, device.Active)
	tracked := f.tracker.Get("sensor-1")
	require.NotNil(t, tracked)
	assert.False(t, tracked.Online, "a freshly registered device starts offline")
	assert.Equal(t, []string{EventDeviceRegistered}, f.hub.events)
}

func TestRegisterDeviceDuplicate(t *testing.T) {
	f := newPipelineFixture(t)
	f.register(t, "sensor-1", 0)

	_, err := f.pipeline.RegisterDevice(context.Background(), DeviceSpec{
		DeviceID: "sensor-1", FarmID: "farm-1", SensorType: "temperature",
	})

	assert.ErrorIs(t, err, repository.ErrDeviceExists)
}

func TestRegisterDeviceUnknownFarm(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.RegisterDevice(context.Background(), DeviceSpec{
		DeviceID: "sensor-1", FarmID: "no-such-farm", SensorType: "temperature",
	})

	assert.ErrorIs(t, err, repository.ErrFarmNotFound)
}

func TestRegisterDeviceMissingFields(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.RegisterDevice(context.Background(), DeviceSpec{DeviceID: "sensor-1"})

	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestIngestReadingAppliesCalibration(t *testing.T) {
	f := newPipelineFixture(t)
	f.register(t, "sensor-1", 1.5)

	reading, err := f.pipeline.IngestReading(context.Background(), ReadingPayload{
		DeviceID: "sensor-1",
		Value:    20,
	})

	require.NoError(t, err)
	assert.InDelta(t, 21.5, reading.Value, 1e-9)
	assert.Equal(t, "farm-1", reading.FarmID)
	assert.Equal(t, 1, f.readings.count())
	assert.Equal(t, 1, f.hub.telemetry)
	assert.Equal(t, 1, f.checker.calls)

	tracked := f.tracker.Get("sensor-1")
	require.NotNil(t, tracked)
	assert.True(t, tracked.Online)
}

func TestIngestReadingUnknownDevice(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.IngestReading(context.Background(), ReadingPayload{DeviceID: "ghost", Value: 1})

	assert.ErrorIs(t, err, repository.ErrDeviceNotFound)
}

func TestIngestReadingInactiveDevice(t *testing.T) {
	f := newPipelineFixture(t)
	f.register(t, "sensor-1", 0)
	require.NoError(t, f.pipeline.DeactivateDevice(context.Background(), "sensor-1"))

	_, err := f.pipeline.IngestReading(context.Background(), ReadingPayload{DeviceID: "sensor-1", Value: 1})

	assert.ErrorIs(t, err, repository.ErrDeviceNotFound)
}

func TestCalibrationRoundTrip(t *testing.T) {
	f := newPipelineFixture(t)
	f.register(t, "sensor-1", 0)

	// Device observed 18.0 while the reference instrument read 20.5.
	device, err := f.pipeline.CalibrateDevice(context.Background(), Calibration{
		DeviceID:       "sensor-1",
		ReferenceValue: 20.5,
		ObservedValue:  18.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, device.CalibrationOffset, 1e-9)

	// The cache was invalidated, so the next reading uses the new offset.
	reading, err := f.pipeline.IngestReading(context.Background(), ReadingPayload{
		DeviceID: "sensor-1",
		Value:    18.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 20.5, reading.Value, 1e-9)
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	f := newPipelineFixture(t)
	f.register(t, "sensor-1", 0)

	accepted := f.pipeline.IngestBatch(context.Background(), []ReadingPayload{
		{DeviceID: "sensor-1", Value: 1},
		{DeviceID: "ghost", Value: 2},
		{DeviceID: "sensor-1", Value: 3},
		{Value: 4},
	})

	assert.Equal(t, 2, accepted)
	assert.Equal(t, 2, f.readings.count())
}

func TestQueueDrainChunking(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.cfg.DrainChunkSize = 10
	f.register(t, "sensor-1", 0)

	for i := 0; i < 25; i++ {
		f.pipeline.Enqueue(ReadingPayload{DeviceID: "sensor-1", Value: float64(i)})
	}
	require.Equal(t, 25, f.pipeline.QueueDepth())

	f.pipeline.drainChunk(context.Background())
	assert.Equal(t, 15, f.pipeline.QueueDepth())
	assert.Equal(t, 10, f.readings.count())

	f.pipeline.drainAll(context.Background())
	assert.Zero(t, f.pipeline.QueueDepth())
	assert.Equal(t, 25, f.readings.count())
}

func TestStartDrainsFullyOnShutdown(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.cfg.DrainInterval = time.Hour // only the shutdown path drains
	f.register(t, "sensor-1", 0)
	for i := 0; i < 120; i++ {
		f.pipeline.Enqueue(ReadingPayload{DeviceID: "sensor-1", Value: float64(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.pipeline.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drain loop did not stop")
	}
	assert.Zero(t, f.pipeline.QueueDepth())
	assert.Equal(t, 120, f.readings.count())
}

func TestDeactivateDevice(t *testing.T) {
	f := newPipelineFixture(t)
	f.register(t, "sensor-1", 0)

	require.NoError(t, f.pipeline.DeactivateDevice(context.Background(), "sensor-1"))

	assert.Nil(t, f.tracker.Get("sensor-1"))
	assert.Contains(t, f.hub.events, EventDeviceDeactivated)
}

func TestDeviceMaxThresholdFlowsToChecker(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.pipeline.RegisterDevice(context.Background(), DeviceSpec{
		DeviceID:     "sensor-17",
		FarmID:       "farm-1",
		SensorType:   "temperature",
		MaxThreshold: floatPtr(30),
		AlertEnabled: true,
	})
	require.NoError(t, err)

	_, err = f.pipeline.IngestReading(context.Background(), ReadingPayload{DeviceID: "sensor-17", Value: 35})

	require.NoError(t, err)
	assert.Equal(t, 1, f.checker.calls)
	reading := f.readings.last()
	require.NotNil(t, reading)
	assert.InDelta(t, 35, reading.Value, 1e-9, "stored value stays raw plus offset even when breaching")
}
