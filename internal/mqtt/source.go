// Package mqtt bridges broker-delivered telemetry into the ingestion queue.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/conf"
	"github.com/terrasense/terrasense-go/internal/ingest"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
	subscribeQoS      = 1
)

// Queue buffers readings for asynchronous ingestion. Implemented by the
// ingestion pipeline.
type Queue interface {
	Enqueue(payload ingest.ReadingPayload)
}

// Source subscribes to the telemetry topic and enqueues decoded readings.
// Delivery is fire-and-forget; malformed messages are logged and dropped.
type Source struct {
	settings *conf.MQTTSettings
	queue    Queue
	log      *zap.Logger
	client   paho.Client
}

// NewSource creates an MQTT telemetry source.
func NewSource(settings *conf.MQTTSettings, queue Queue, log *zap.Logger) *Source {
	return &Source{settings: settings, queue: queue, log: log}
}

// Start connects to the broker and subscribes. The client auto-reconnects
// and re-subscribes after broker outages.
func (s *Source) Start(_ context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.settings.Broker)
	opts.SetClientID(s.settings.ClientID)
	if s.settings.Username != "" {
		opts.SetUsername(s.settings.Username)
	}
	if s.settings.Password != "" {
		opts.SetPassword(s.settings.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(client paho.Client) {
		s.log.Info("mqtt connected", zap.String("broker", s.settings.Broker))
		token := client.Subscribe(s.settings.Topic, subscribeQoS, s.handleMessage)
		if token.Wait() && token.Error() != nil {
			s.log.Error("mqtt subscribe failed",
				zap.String("topic", s.settings.Topic),
				zap.Error(token.Error()))
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.log.Warn("mqtt connection lost", zap.Error(err))
	})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", s.settings.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.settings.Broker, err)
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Source) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}
}

// handleMessage decodes one telemetry message and enqueues it. The device ID
// comes from the payload, falling back to the wildcard topic segment
// (telemetry/{device}/reading).
func (s *Source) handleMessage(_ paho.Client, msg paho.Message) {
	var payload ingest.ReadingPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.log.Warn("dropping malformed telemetry message",
			zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if payload.DeviceID == "" {
		payload.DeviceID = deviceFromTopic(msg.Topic())
	}
	if payload.DeviceID == "" {
		s.log.Warn("dropping telemetry message without device id",
			zap.String("topic", msg.Topic()))
		return
	}
	s.queue.Enqueue(payload)
}

func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
