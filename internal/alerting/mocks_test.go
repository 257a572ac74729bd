package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
)

// mockRuleRepo is an in-memory RuleRepository.
type mockRuleRepo struct {
	mu      sync.Mutex
	rules   []entities.AlertRule
	history []entities.AlertHistory
	nextID  uint
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{nextID: 1}
}

func (m *mockRuleRepo) ListRules(context.Context) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.AlertRule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *mockRuleRepo) GetEnabledRules(context.Context) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertRule
	for _, rule := range m.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) CreateRule(_ context.Context, rule *entities.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = m.nextID
	m.nextID++
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *mockRuleRepo) DeleteRule(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) SaveHistory(_ context.Context, history *entities.AlertHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *history)
	return nil
}

func (m *mockRuleRepo) ListHistory(_ context.Context, farmID string, limit, offset int) ([]entities.AlertHistory, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertHistory
	for _, h := range m.history {
		if h.FarmID == farmID {
			out = append(out, h)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockRuleRepo) DeleteHistoryBefore(_ context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockRuleRepo) historyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// mockReadingRepo serves canned latest-per-device readings keyed by sensor
// type.
type mockReadingRepo struct {
	mu     sync.Mutex
	latest map[string][]entities.SensorReading
}

func newMockReadingRepo() *mockReadingRepo {
	return &mockReadingRepo{latest: make(map[string][]entities.SensorReading)}
}

func (m *mockReadingRepo) Save(context.Context, *entities.SensorReading) error { return nil }

func (m *mockReadingRepo) FindInWindow(context.Context, string, string, time.Time) ([]entities.SensorReading, error) {
	return nil, nil
}

func (m *mockReadingRepo) LatestPerDevice(_ context.Context, _, sensorType string, _ time.Time) ([]entities.SensorReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest[sensorType], nil
}

func (m *mockReadingRepo) ListForDevice(context.Context, uint, int) ([]entities.SensorReading, error) {
	return nil, nil
}

func (m *mockReadingRepo) Aggregate(context.Context, string, string, repository.AggregationBucket, time.Time) ([]repository.AggregatedReading, error) {
	return nil, nil
}

func (m *mockReadingRepo) Stats(context.Context, string, string, time.Time) (*repository.ReadingStats, error) {
	return nil, nil
}

// mockFarmRepo serves a fixed active-farm set.
type mockFarmRepo struct {
	activeIDs []string
	members   map[string][]string
}

func (m *mockFarmRepo) Exists(_ context.Context, farmID string) (bool, error) {
	for _, id := range m.activeIDs {
		if id == farmID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockFarmRepo) ListActiveIDs(context.Context) ([]string, error) {
	return m.activeIDs, nil
}

func (m *mockFarmRepo) MembersOf(_ context.Context, farmID string) ([]string, error) {
	return m.members[farmID], nil
}

func (m *mockFarmRepo) Seed(context.Context, *entities.Farm) error { return nil }

// mockBroadcaster records broadcast alerts.
type mockBroadcaster struct {
	mu     sync.Mutex
	alerts []*Alert
}

func (m *mockBroadcaster) BroadcastAlert(alert *Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func (m *mockBroadcaster) last() *Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.alerts) == 0 {
		return nil
	}
	return m.alerts[len(m.alerts)-1]
}

// mockNotifier records push deliveries, split by criticality.
type mockNotifier struct {
	mu       sync.Mutex
	normal   []*Alert
	critical []*Alert
}

func (m *mockNotifier) NotifyFarm(_ context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normal = append(m.normal, alert)
	return nil
}

func (m *mockNotifier) NotifyFarmCritical(_ context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.critical = append(m.critical, alert)
	return nil
}

func (m *mockNotifier) counts() (normal, critical int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.normal), len(m.critical)
}
