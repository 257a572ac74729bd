// Package conf loads and validates runtime configuration.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full runtime configuration tree.
type Settings struct {
	HTTP      HTTPSettings      `mapstructure:"http"`
	Database  DatabaseSettings  `mapstructure:"database"`
	Ingestion IngestionSettings `mapstructure:"ingestion"`
	Alerting  AlertingSettings  `mapstructure:"alerting"`
	Realtime  RealtimeSettings  `mapstructure:"realtime"`
	MQTT      MQTTSettings      `mapstructure:"mqtt"`
	Push      PushSettings      `mapstructure:"push"`
}

// HTTPSettings configures the HTTP listener.
type HTTPSettings struct {
	Listen string `mapstructure:"listen"`
}

// DatabaseSettings selects the reading-store backend.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// IngestionSettings tunes the queued ingestion path.
type IngestionSettings struct {
	DrainInterval  Duration `mapstructure:"drain_interval"`
	DrainChunkSize int      `mapstructure:"drain_chunk_size"`
	DeviceCacheTTL Duration `mapstructure:"device_cache_ttl"`
}

// AlertingSettings tunes the rule evaluation cycle.
type AlertingSettings struct {
	EvaluationInterval   Duration `mapstructure:"evaluation_interval"`
	MaxConcurrentFarms   int      `mapstructure:"max_concurrent_farms"`
	HistoryRetentionDays int      `mapstructure:"history_retention_days"`
}

// RealtimeSettings configures the live connection boundary.
type RealtimeSettings struct {
	// SigningSecret verifies bearer tokens on live connections. Startup
	// fails if it is empty.
	SigningSecret string `mapstructure:"signing_secret"`
}

// MQTTSettings configures the optional MQTT telemetry source.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PushSettings configures Web Push delivery and the operator side channel.
type PushSettings struct {
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"`
	// OperatorURL is a shoutrrr service URL mirrored critical alerts.
	// Optional.
	OperatorURL string `mapstructure:"operator_url"`
}

// Load reads configuration from the given file (optional) and TERRASENSE_*
// environment variables, applies defaults, and validates.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("TERRASENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.listen", ":8090")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "terrasense.db")
	v.SetDefault("ingestion.drain_interval", "5s")
	v.SetDefault("ingestion.drain_chunk_size", 50)
	v.SetDefault("ingestion.device_cache_ttl", "1m")
	v.SetDefault("alerting.evaluation_interval", "2m")
	v.SetDefault("alerting.max_concurrent_farms", 4)
	v.SetDefault("alerting.history_retention_days", 30)
	v.SetDefault("mqtt.topic", "telemetry/+/reading")
	v.SetDefault("mqtt.client_id", "terrasense-core")
}

// Validate enforces startup-fatal configuration requirements.
func (s *Settings) Validate() error {
	if s.Realtime.SigningSecret == "" {
		return errors.New("realtime.signing_secret is required")
	}
	if s.Ingestion.DrainChunkSize <= 0 {
		return errors.New("ingestion.drain_chunk_size must be positive")
	}
	if s.Ingestion.DrainInterval.Std() <= 0 {
		return errors.New("ingestion.drain_interval must be positive")
	}
	if s.Alerting.EvaluationInterval.Std() < time.Second {
		return errors.New("alerting.evaluation_interval must be at least 1s")
	}
	if s.Alerting.MaxConcurrentFarms <= 0 {
		return errors.New("alerting.max_concurrent_farms must be positive")
	}
	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
