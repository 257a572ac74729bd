package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/observability"
)

const (
	// saveHistoryTimeout is the context deadline for persisting alert history.
	saveHistoryTimeout = 3 * time.Second
	// cleanupTimeout is the context deadline for the periodic history deletion.
	cleanupTimeout = 5 * time.Second
	// cleanupInterval is how often the history cleanup goroutine runs.
	cleanupInterval = 1 * time.Hour
)

// EngineConfig wires the engine's collaborators and tuning knobs. All
// collaborators are injected at construction; there is no lazy resolution.
type EngineConfig struct {
	Rules    repository.RuleRepository
	Readings repository.ReadingRepository
	Farms    repository.FarmRepository

	Dispatcher *ActionDispatcher
	Log        *zap.Logger

	// EvaluationInterval is the period between evaluation cycles and the
	// default condition lookback when a condition has no sustain duration.
	EvaluationInterval time.Duration
	// MaxConcurrentFarms bounds per-cycle farm evaluation parallelism to
	// protect the reading store from thundering-herd queries.
	MaxConcurrentFarms int
}

// Engine holds the active rule set and runs the periodic evaluation cycle.
// State machine per (rule, farm): Idle → Evaluating → (Suppressed | Firing)
// → Idle. Cooldown state is in-memory only; a restart allows one immediate
// re-fire, which is an accepted trade-off.
type Engine struct {
	cfg EngineConfig

	rules   []entities.AlertRule
	rulesMu sync.RWMutex

	// cooldowns maps farmID+"/"+ruleID → last fired time. Guarded by a
	// plain mutex so the cooldown check-and-set is atomic per key.
	cooldowns   map[string]time.Time
	cooldownsMu sync.Mutex

	cleanupStop chan struct{}
	cleanupMu   sync.Mutex
}

// NewEngine creates the alert rule engine.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		cfg:       cfg,
		cooldowns: make(map[string]time.Time),
	}
}

// LoadRules seeds the built-in default rules when the store is empty and
// loads all enabled rules into the in-memory set.
func (e *Engine) LoadRules(ctx context.Context) error {
	existing, err := e.cfg.Rules.ListRules(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		defaults := DefaultRules()
		for i := range defaults {
			if err := e.cfg.Rules.CreateRule(ctx, &defaults[i]); err != nil {
				return err
			}
		}
		e.cfg.Log.Info("seeded default alert rules", zap.Int("created", len(defaults)))
	}

	rules, err := e.cfg.Rules.GetEnabledRules(ctx)
	if err != nil {
		return err
	}
	e.rulesMu.Lock()
	e.rules = rules
	e.rulesMu.Unlock()
	return nil
}

// Start runs evaluation cycles at the configured interval until the context
// is cancelled.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.EvaluationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.EvaluateCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// EvaluateCycle runs one full evaluation pass over all active rules. A
// failure evaluating one farm never aborts sibling farms; errors are logged
// at the unit level.
func (e *Engine) EvaluateCycle(ctx context.Context) {
	e.rulesMu.RLock()
	rules := make([]entities.AlertRule, len(e.rules))
	copy(rules, e.rules)
	e.rulesMu.RUnlock()

	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}
		farms, err := e.targetFarms(ctx, rule)
		if err != nil {
			e.cfg.Log.Error("failed to resolve target farms",
				zap.Uint("rule_id", rule.ID), zap.Error(err))
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.MaxConcurrentFarms)
		for _, farmID := range farms {
			farmID := farmID
			g.Go(func() error {
				if err := e.evaluateRuleForFarm(gctx, rule, farmID); err != nil {
					e.cfg.Log.Error("rule evaluation failed",
						zap.Uint("rule_id", rule.ID),
						zap.String("farm_id", farmID),
						zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

// targetFarms resolves the farm set a rule applies to: its own farm, or
// every active farm for wildcard rules.
func (e *Engine) targetFarms(ctx context.Context, rule *entities.AlertRule) ([]string, error) {
	if rule.FarmID != "" {
		return []string{rule.FarmID}, nil
	}
	return e.cfg.Farms.ListActiveIDs(ctx)
}

// evaluateRuleForFarm checks one (rule, farm) pair. Conditions use OR logic:
// the first condition satisfied by any matching device fires the rule.
func (e *Engine) evaluateRuleForFarm(ctx context.Context, rule *entities.AlertRule, farmID string) error {
	cooldown := time.Duration(rule.CooldownSec) * time.Second
	if e.inCooldown(rule.ID, farmID, cooldown) {
		return nil
	}

	now := time.Now()
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		window := time.Duration(cond.SustainSec) * time.Second
		if window <= 0 {
			window = e.cfg.EvaluationInterval
		}
		readings, err := e.cfg.Readings.LatestPerDevice(ctx, farmID, cond.SensorType, now.Add(-window))
		if err != nil {
			return fmt.Errorf("condition query failed: %w", err)
		}
		for j := range readings {
			reading := &readings[j]
			if !evaluateOperator(reading.Value, cond) {
				continue
			}
			if !e.claimFiring(rule.ID, farmID, cooldown) {
				observability.AlertsSuppressed.Inc()
				return nil
			}
			e.fire(ctx, rule, farmID, cond, reading)
			return nil
		}
	}
	return nil
}

// fire constructs the alert for a satisfied condition and delivers it
// through the rule's enabled actions.
func (e *Engine) fire(ctx context.Context, rule *entities.AlertRule, farmID string, cond *entities.AlertCondition, reading *entities.SensorReading) {
	message := fmt.Sprintf("%s reading %.2f%s breached condition %s %g",
		cond.SensorType, reading.Value, reading.Unit, cond.Operator, cond.Value)
	alert := NewAlert(farmID, AlertTypeForRule(rule.RuleType), rule.Severity, rule.Name, message, map[string]any{
		"rule_id":     rule.ID,
		"device_id":   reading.DeviceID,
		"sensor_type": cond.SensorType,
		"value":       reading.Value,
		"operator":    cond.Operator,
		"threshold":   cond.Value,
	})

	e.cfg.Log.Info("alert rule fired",
		zap.Uint("rule_id", rule.ID),
		zap.String("farm_id", farmID),
		zap.String("severity", alert.Severity))
	observability.AlertsFired.WithLabelValues(observability.SourceRule).Inc()

	e.cfg.Dispatcher.Dispatch(ctx, alert, rule.Actions)
	e.recordHistory(alert, rule.ID)
}

// inCooldown reports whether the (rule, farm) pair fired within its cooldown.
func (e *Engine) inCooldown(ruleID uint, farmID string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return false
	}
	e.cooldownsMu.Lock()
	defer e.cooldownsMu.Unlock()
	lastFired, exists := e.cooldowns[cooldownKey(ruleID, farmID)]
	return exists && time.Now().Before(lastFired.Add(cooldown))
}

// claimFiring atomically re-checks the cooldown and records the firing.
// Two concurrent evaluations of the same (rule, farm) cannot both succeed.
func (e *Engine) claimFiring(ruleID uint, farmID string, cooldown time.Duration) bool {
	e.cooldownsMu.Lock()
	defer e.cooldownsMu.Unlock()
	key := cooldownKey(ruleID, farmID)
	now := time.Now()
	if cooldown > 0 {
		if lastFired, exists := e.cooldowns[key]; exists && now.Before(lastFired.Add(cooldown)) {
			return false
		}
	}
	e.cooldowns[key] = now
	return true
}

func cooldownKey(ruleID uint, farmID string) string {
	return fmt.Sprintf("%s/%d", farmID, ruleID)
}

// HandleReading is the synchronous fast-path check invoked by the ingestion
// pipeline: a single calibrated reading against the device's own static
// thresholds, bypassing the periodic cycle. Breaches classify as severity
// high and deliver through both channels immediately.
func (e *Engine) HandleReading(ctx context.Context, device *entities.SensorDevice, reading *entities.SensorReading) *Alert {
	breach := CheckStaticThresholds(device, reading.Value)
	if breach == nil {
		return nil
	}
	alert := NewAlert(device.FarmID, AlertTypeSensor, SeverityHigh,
		fmt.Sprintf("Sensor threshold alert: %s", device.DeviceID), breach.Message, map[string]any{
			"device_id":   device.DeviceID,
			"sensor_type": device.SensorType,
			"value":       reading.Value,
			"unit":        device.Unit,
		})

	e.cfg.Log.Info("fast-path threshold breach",
		zap.String("device_id", device.DeviceID),
		zap.String("farm_id", device.FarmID),
		zap.Float64("value", reading.Value))
	observability.AlertsFired.WithLabelValues(observability.SourceFastPath).Inc()

	e.cfg.Dispatcher.DispatchAll(ctx, alert)
	e.recordHistory(alert, 0)
	return alert
}

// ManualTrigger bypasses rule evaluation and cooldown entirely and delivers
// through both channels. Used for testing and operator-initiated alerts.
func (e *Engine) ManualTrigger(ctx context.Context, farmID, alertType, severity, title, message string, data map[string]any) *Alert {
	alert := NewAlert(farmID, alertType, severity, title, message, data)
	observability.AlertsFired.WithLabelValues(observability.SourceManual).Inc()
	e.cfg.Dispatcher.DispatchAll(ctx, alert)
	e.recordHistory(alert, 0)
	return alert
}

// AddRule persists a rule and makes it effective on the next cycle.
func (e *Engine) AddRule(ctx context.Context, rule *entities.AlertRule) error {
	if err := e.cfg.Rules.CreateRule(ctx, rule); err != nil {
		return err
	}
	e.rulesMu.Lock()
	e.rules = append(e.rules, *rule)
	e.rulesMu.Unlock()
	return nil
}

// RemoveRule deletes a rule by ID. Returns repository.ErrAlertRuleNotFound
// if no such rule exists.
func (e *Engine) RemoveRule(ctx context.Context, id uint) error {
	if err := e.cfg.Rules.DeleteRule(ctx, id); err != nil {
		return err
	}
	e.rulesMu.Lock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			break
		}
	}
	e.rulesMu.Unlock()
	return nil
}

// Rules returns a copy of the active rule set.
func (e *Engine) Rules() []entities.AlertRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	rules := make([]entities.AlertRule, len(e.rules))
	copy(rules, e.rules)
	return rules
}

// recordHistory persists one delivered alert. Failures are logged, never
// propagated; history is bookkeeping, not delivery.
func (e *Engine) recordHistory(alert *Alert, ruleID uint) {
	payload, err := json.Marshal(alert.Data)
	if err != nil {
		e.cfg.Log.Error("failed to marshal alert payload", zap.Error(err))
		payload = []byte("{}")
	}
	history := &entities.AlertHistory{
		AlertID:   alert.ID,
		RuleID:    ruleID,
		FarmID:    alert.FarmID,
		AlertType: alert.Type,
		Severity:  alert.Severity,
		Title:     alert.Title,
		Message:   alert.Message,
		Payload:   string(payload),
		FiredAt:   alert.Timestamp,
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), saveHistoryTimeout)
	defer cancel()
	if err := e.cfg.Rules.SaveHistory(saveCtx, history); err != nil {
		e.cfg.Log.Error("failed to save alert history",
			zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

// StartHistoryCleanup starts a background goroutine that periodically deletes
// alert history entries older than retentionDays. A value of 0 disables it.
func (e *Engine) StartHistoryCleanup(retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	e.stopCleanup()
	e.cleanupMu.Lock()
	e.cleanupStop = make(chan struct{})
	stopCh := e.cleanupStop
	e.cleanupMu.Unlock()
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retentionDays)
				cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				deleted, err := e.cfg.Rules.DeleteHistoryBefore(cleanupCtx, cutoff)
				cancel()
				if err != nil {
					e.cfg.Log.Error("alert history cleanup failed", zap.Error(err))
				} else if deleted > 0 {
					e.cfg.Log.Info("alert history cleanup completed",
						zap.Int64("deleted", deleted),
						zap.Int("retention_days", retentionDays))
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// stopCleanup signals the cleanup goroutine to exit. The nil-check-then-close
// is done under cleanupMu to prevent double-close races.
func (e *Engine) stopCleanup() {
	e.cleanupMu.Lock()
	ch := e.cleanupStop
	e.cleanupStop = nil
	e.cleanupMu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Stop shuts down background goroutines.
func (e *Engine) Stop() {
	e.stopCleanup()
}
