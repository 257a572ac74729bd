package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/ingest"
	"github.com/terrasense/terrasense-go/internal/notify"
	"github.com/terrasense/terrasense-go/internal/realtime"
	"github.com/terrasense/terrasense-go/internal/status"
)

const apiTestSecret = "api-test-secret"

var apiDBCounter int

// nopSender swallows pushes; delivery behavior is covered in the notify tests.
type nopSender struct{}

func (nopSender) Send(context.Context, *entities.PushSubscription, []byte) error { return nil }

func newTestController(t *testing.T) *Controller {
	t.Helper()
	apiDBCounter++
	dsn := fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", apiDBCounter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&entities.Farm{}, &entities.FarmMember{},
		&entities.SensorDevice{}, &entities.SensorReading{},
		&entities.AlertRule{}, &entities.AlertCondition{}, &entities.AlertAction{},
		&entities.AlertHistory{}, &entities.PushSubscription{}, &entities.NotificationPreference{},
	))

	devices := repository.NewDeviceRepository(db)
	readings := repository.NewReadingRepository(db)
	farms := repository.NewFarmRepository(db)
	rules := repository.NewRuleRepository(db)
	subscriptions := repository.NewSubscriptionRepository(db)

	ctx := context.Background()
	require.NoError(t, farms.Seed(ctx, &entities.Farm{ID: "farm-1", Name: "North Field", Active: true}))
	require.NoError(t, db.Create(&entities.FarmMember{FarmID: "farm-1", UserID: "alice"}).Error)

	log := zap.NewNop()
	tracker := status.NewTracker()
	verifier := realtime.NewJWTVerifier(apiTestSecret)
	hub := realtime.NewHub(verifier, farms, log)
	dispatcher := notify.NewDispatcher(subscriptions, farms, nopSender{}, log)
	notifier := notify.NewAlertNotifier(dispatcher, farms, nil)

	engine := alerting.NewEngine(alerting.EngineConfig{
		Rules:              rules,
		Readings:           readings,
		Farms:              farms,
		Dispatcher:         alerting.NewActionDispatcher(hub, notifier, log),
		Log:                log,
		EvaluationInterval: 2 * time.Minute,
		MaxConcurrentFarms: 2,
	})
	require.NoError(t, engine.LoadRules(ctx))

	pipeline := ingest.NewPipeline(ingest.Config{
		Devices:        devices,
		Readings:       readings,
		Farms:          farms,
		Tracker:        tracker,
		Hub:            hub,
		Checker:        engine,
		Log:            log,
		DrainInterval:  5 * time.Second,
		DrainChunkSize: 50,
		DeviceCacheTTL: time.Minute,
	})

	return New(Config{
		Pipeline:   pipeline,
		Engine:     engine,
		Hub:        hub,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Devices:    devices,
		Readings:   readings,
		Farms:      farms,
		Rules:      rules,
		Verifier:   verifier,
		Log:        log,
	})
}

func doJSON(t *testing.T, c *Controller, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoContentType, "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func bearerToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(apiTestSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestDeviceLifecycleEndpoints(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(t, c, http.MethodPost, "/api/v1/devices",
		`{"device_id":"sensor-1","farm_id":"farm-1","sensor_type":"temperature","unit":"°C","alert_enabled":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, c, http.MethodPost, "/api/v1/devices",
		`{"device_id":"sensor-1","farm_id":"farm-1","sensor_type":"temperature"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/devices",
		`{"device_id":"sensor-2","farm_id":"no-such-farm","sensor_type":"temperature"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/devices?farm=farm-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Count)

	rec = doJSON(t, c, http.MethodDelete, "/api/v1/devices/sensor-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReadingEndpoints(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(t, c, http.MethodPost, "/api/v1/devices",
		`{"device_id":"sensor-1","farm_id":"farm-1","sensor_type":"temperature","calibration_offset":1.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/readings", `{"device_id":"sensor-1","value":20}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reading entities.SensorReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
	assert.InDelta(t, 21.5, reading.Value, 1e-9)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/readings", `{"device_id":"ghost","value":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/readings", `{"value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/readings/batch",
		`[{"device_id":"sensor-1","value":1},{"device_id":"ghost","value":2}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	var batch struct {
		Accepted int `json:"accepted"`
		Rejected int `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 1, batch.Accepted)
	assert.Equal(t, 1, batch.Rejected)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/readings?farm=farm-1&sensor_type=temperature", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/readings?farm=farm-1&sensor_type=temperature&bucket=hourly", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/readings?farm=farm-1&sensor_type=temperature&bucket=quarterly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/readings/stats?farm=farm-1&sensor_type=temperature", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats repository.ReadingStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Count)
}

func TestAlertRuleEndpoints(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(t, c, http.MethodGet, "/api/v1/alerts/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.NotZero(t, listed.Count, "default rules are seeded")

	rec = doJSON(t, c, http.MethodPost, "/api/v1/alerts/rules",
		`{"name":"frost warning","farm_id":"farm-1","rule_type":"threshold","severity":"high","enabled":true,
		  "conditions":[{"sensor_type":"temperature","operator":"lt","value":0}],
		  "actions":[{"channel":"broadcast","enabled":true}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created entities.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/alerts/rules", `{"name":"no conditions"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, c, http.MethodDelete, fmt.Sprintf("/api/v1/alerts/rules/%d", created.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, c, http.MethodDelete, fmt.Sprintf("/api/v1/alerts/rules/%d", created.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAlertRuleValidation(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(t, c, http.MethodPost, "/api/v1/alerts/rules",
		`{"name":"bad op","farm_id":"farm-1","rule_type":"threshold","enabled":true,
		  "conditions":[{"sensor_type":"temperature","operator":"above","value":30}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown operator")

	rec = doJSON(t, c, http.MethodPost, "/api/v1/alerts/rules",
		`{"name":"bad severity","farm_id":"farm-1","rule_type":"threshold","severity":"urgent","enabled":true,
		  "conditions":[{"sensor_type":"temperature","operator":"gt","value":30}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown severity")

	rec = doJSON(t, c, http.MethodPost, "/api/v1/alerts/rules",
		`{"name":"bad channel","farm_id":"farm-1","rule_type":"threshold","enabled":true,
		  "conditions":[{"sensor_type":"temperature","operator":"gt","value":30}],
		  "actions":[{"channel":"sms","enabled":true}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown channel")

	// Omitted severity defaults rather than rejecting.
	rec = doJSON(t, c, http.MethodPost, "/api/v1/alerts/rules",
		`{"name":"defaulted","farm_id":"farm-1","rule_type":"threshold","enabled":true,
		  "conditions":[{"sensor_type":"temperature","operator":"gt","value":30}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created entities.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, alerting.SeverityMedium, created.Severity)
}

func TestTriggerAndHistoryEndpoints(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(t, c, http.MethodPost, "/api/v1/alerts/trigger",
		`{"farm_id":"farm-1","type":"system","severity":"low","title":"Drill","message":"irrigation test"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var alert alerting.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	assert.NotEmpty(t, alert.ID)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/alerts/trigger", `{"title":"no farm"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/alerts/history?farm=farm-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.EqualValues(t, 1, history.Total)
}

func TestFarmHealthEndpoint(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(t, c, http.MethodPost, "/api/v1/devices",
		`{"device_id":"sensor-1","farm_id":"farm-1","sensor_type":"temperature"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/farms/farm-1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary status.HealthSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Offline)

	rec = doJSON(t, c, http.MethodGet, "/api/v1/farms/ghost/health", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPushEndpointsRequireAuth(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(t, c, http.MethodPost, "/api/v1/push/subscribe",
		`{"endpoint":"https://push/ep","p256dh":"k","auth":"a"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/push/subscribe",
		`{"endpoint":"https://push/ep","p256dh":"k","auth":"a"}`,
		"Authorization", bearerToken(t, "alice"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, c, http.MethodPut, "/api/v1/push/preferences",
		`[{"notification_type":"iot_sensor","enabled":true,"min_priority":"high"}]`,
		"Authorization", bearerToken(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, c, http.MethodPut, "/api/v1/push/preferences",
		`[{"notification_type":"iot_sensor","min_priority":"urgent"}]`,
		"Authorization", bearerToken(t, "alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, c, http.MethodPost, "/api/v1/push/unsubscribe",
		`{"endpoint":"https://push/ep"}`,
		"Authorization", bearerToken(t, "alice"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthz(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(t, c, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status     string `json:"status"`
		QueueDepth int    `json:"queue_depth"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.QueueDepth)
}
