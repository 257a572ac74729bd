// Package status tracks per-device liveness in memory. State is rebuilt from
// first contact after a restart; nothing here is persisted.
package status

import (
	"sync"
	"time"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// lowBatteryThreshold is the battery percentage below which a device counts
// as low-battery in health summaries.
const lowBatteryThreshold = 20.0

// DeviceStatus is the latest liveness snapshot for one device.
type DeviceStatus struct {
	DeviceID       string    `json:"device_id"`
	Online         bool      `json:"online"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	BatteryLevel   *float64  `json:"battery_level,omitempty"`
	SignalStrength *float64  `json:"signal_strength,omitempty"`
	ErrorCount     int       `json:"error_count"`
}

// Update carries the fields to merge into a device's status. Nil pointer
// fields leave the prior value untouched.
type Update struct {
	Online         *bool
	LastSeenAt     *time.Time
	BatteryLevel   *float64
	SignalStrength *float64
	ErrorDelta     int
}

// HealthSummary aggregates device liveness for one farm.
type HealthSummary struct {
	FarmID     string `json:"farm_id"`
	Total      int    `json:"total"`
	Online     int    `json:"online"`
	Offline    int    `json:"offline"`
	WithErrors int    `json:"with_errors"`
	LowBattery int    `json:"low_battery"`
}

// Tracker is a mutex-guarded map of device ID → status. Last writer wins;
// Upsert is the only mutation path and is atomic per call.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]*DeviceStatus
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{statuses: make(map[string]*DeviceStatus)}
}

// Upsert merges the update into the device's status, creating the entry on
// first contact. Unspecified fields retain their prior value.
func (t *Tracker) Upsert(deviceID string, update Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.statuses[deviceID]
	if !ok {
		st = &DeviceStatus{DeviceID: deviceID}
		t.statuses[deviceID] = st
	}
	if update.Online != nil {
		st.Online = *update.Online
	}
	if update.LastSeenAt != nil {
		st.LastSeenAt = *update.LastSeenAt
	}
	if update.BatteryLevel != nil {
		st.BatteryLevel = update.BatteryLevel
	}
	if update.SignalStrength != nil {
		st.SignalStrength = update.SignalStrength
	}
	st.ErrorCount += update.ErrorDelta
}

// Get returns a copy of the device's status, or nil if never seen.
func (t *Tracker) Get(deviceID string) *DeviceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[deviceID]
	if !ok {
		return nil
	}
	out := *st
	return &out
}

// Remove drops a device from tracking. Called on deactivation so health
// summaries exclude the device entirely.
func (t *Tracker) Remove(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, deviceID)
}

// HealthSummary aggregates liveness over the given active devices of a farm.
// Devices without a tracked status count as offline.
func (t *Tracker) HealthSummary(farmID string, devices []entities.SensorDevice) HealthSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := HealthSummary{FarmID: farmID, Total: len(devices)}
	for i := range devices {
		st, ok := t.statuses[devices[i].DeviceID]
		if !ok {
			continue
		}
		if st.Online {
			summary.Online++
		}
		if st.ErrorCount > 0 {
			summary.WithErrors++
		}
		if st.BatteryLevel != nil && *st.BatteryLevel < lowBatteryThreshold {
			summary.LowBattery++
		}
	}
	summary.Offline = summary.Total - summary.Online
	return summary
}
