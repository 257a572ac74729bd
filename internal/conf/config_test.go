package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TERRASENSE_REALTIME_SIGNING_SECRET", "test-secret")

	settings, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, ":8090", settings.HTTP.Listen)
	assert.Equal(t, "sqlite", settings.Database.Driver)
	assert.Equal(t, 5*time.Second, settings.Ingestion.DrainInterval.Std())
	assert.Equal(t, 50, settings.Ingestion.DrainChunkSize)
	assert.Equal(t, 2*time.Minute, settings.Alerting.EvaluationInterval.Std())
	assert.Equal(t, 4, settings.Alerting.MaxConcurrentFarms)
	assert.Equal(t, "telemetry/+/reading", settings.MQTT.Topic)
	assert.False(t, settings.MQTT.Enabled)
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	t.Setenv("TERRASENSE_REALTIME_SIGNING_SECRET", "")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_secret")
}

func TestLoadFromFile(t *testing.T) {
	content := `
http:
  listen: ":9999"
ingestion:
  drain_interval: 30s
  drain_chunk_size: 10
alerting:
  evaluation_interval: 5m
realtime:
  signing_secret: file-secret
mqtt:
  enabled: true
  broker: tcp://localhost:1883
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9999", settings.HTTP.Listen)
	assert.Equal(t, 30*time.Second, settings.Ingestion.DrainInterval.Std())
	assert.Equal(t, 10, settings.Ingestion.DrainChunkSize)
	assert.Equal(t, 5*time.Minute, settings.Alerting.EvaluationInterval.Std())
	assert.Equal(t, "file-secret", settings.Realtime.SigningSecret)
	assert.True(t, settings.MQTT.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Settings {
		return &Settings{
			Realtime:  RealtimeSettings{SigningSecret: "x"},
			Ingestion: IngestionSettings{DrainInterval: Duration(5 * time.Second), DrainChunkSize: 50},
			Alerting:  AlertingSettings{EvaluationInterval: Duration(2 * time.Minute), MaxConcurrentFarms: 4},
		}
	}

	valid := base()
	assert.NoError(t, valid.Validate())

	noChunk := base()
	noChunk.Ingestion.DrainChunkSize = 0
	assert.Error(t, noChunk.Validate())

	fastCycle := base()
	fastCycle.Alerting.EvaluationInterval = Duration(100 * time.Millisecond)
	assert.Error(t, fastCycle.Validate())

	mqttNoBroker := base()
	mqttNoBroker.MQTT.Enabled = true
	assert.Error(t, mqttNoBroker.Validate())
}
