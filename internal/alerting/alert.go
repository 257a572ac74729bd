package alerting

import (
	"time"

	"github.com/google/uuid"
)

// Alert is an ephemeral alert event. Alerts are produced by the rule engine,
// the fast-path threshold check, or a manual trigger, and consumed by the
// broadcast hub and the notification dispatcher. The core never owns them
// beyond delivery; a copy lands in the alert history table.
type Alert struct {
	ID        string         `json:"id"`
	FarmID    string         `json:"farm_id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewAlert constructs an alert with a fresh ID and timestamp.
func NewAlert(farmID, alertType, severity, title, message string, data map[string]any) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		FarmID:    farmID,
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}
