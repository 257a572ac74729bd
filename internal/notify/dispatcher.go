// Package notify implements the notification dispatcher: per-user preference
// filtering, multi-subscription Web Push delivery, and the critical-severity
// override.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/observability"
)

// ErrEndpointGone marks a delivery-provider gone/expired response. The
// offending subscription is deactivated as a side effect, never surfaced to
// the caller.
var ErrEndpointGone = errors.New("push endpoint gone")

// Payload is the notification payload schema delivered to push endpoints.
type Payload struct {
	Title              string          `json:"title"`
	Body               string          `json:"body"`
	Icon               string          `json:"icon,omitempty"`
	Badge              string          `json:"badge,omitempty"`
	Tag                string          `json:"tag,omitempty"`
	Data               map[string]any  `json:"data,omitempty"`
	Actions            []PayloadAction `json:"actions,omitempty"`
	RequireInteraction bool            `json:"requireInteraction"`
}

// PayloadAction is one action button on a notification.
type PayloadAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Context carries the alert type and priority a delivery is filtered on.
type Context struct {
	AlertType string
	Priority  string
}

// SubscriptionSpec registers one push endpoint for a user.
type SubscriptionSpec struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// PushSender delivers an encoded payload to one subscription endpoint.
// Implementations return ErrEndpointGone for gone/expired endpoints.
type PushSender interface {
	Send(ctx context.Context, sub *entities.PushSubscription, payload []byte) error
}

// Dispatcher resolves users, filters by preference, and fans deliveries out
// to each user's active subscriptions independently.
type Dispatcher struct {
	subs   repository.SubscriptionRepository
	farms  repository.FarmRepository
	sender PushSender
	log    *zap.Logger
}

// NewDispatcher creates the notification dispatcher.
func NewDispatcher(subs repository.SubscriptionRepository, farms repository.FarmRepository, sender PushSender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{subs: subs, farms: farms, sender: sender, log: log}
}

// Subscribe upserts a push endpoint for a user, reactivating a previously
// deactivated endpoint with fresh keys.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string, spec SubscriptionSpec) (*entities.PushSubscription, error) {
	if spec.Endpoint == "" || spec.P256dh == "" || spec.Auth == "" {
		return nil, fmt.Errorf("endpoint, p256dh and auth are required")
	}
	sub := &entities.PushSubscription{
		UserID:   userID,
		Endpoint: spec.Endpoint,
		P256dh:   spec.P256dh,
		Auth:     spec.Auth,
	}
	if err := d.subs.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe deactivates a user's endpoint.
func (d *Dispatcher) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return d.subs.DeactivateSubscription(ctx, userID, endpoint)
}

// UpdatePreferences idempotently upserts (type, enabled, minPriority) tuples.
func (d *Dispatcher) UpdatePreferences(ctx context.Context, userID string, prefs []entities.NotificationPreference) error {
	return d.subs.UpsertPreferences(ctx, userID, prefs)
}

// SendToUser delivers to every active subscription of the user, subject to
// the preference check. Per-subscription failures never fail the others.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, payload Payload, nctx Context) error {
	allowed, err := d.checkPreference(ctx, userID, nctx)
	if err != nil {
		return err
	}
	if !allowed {
		observability.PushDeliveries.WithLabelValues(observability.OutcomeSuppressed).Inc()
		return nil
	}
	return d.deliver(ctx, userID, payload)
}

// SendToFarm resolves farm membership and delivers to each member
// independently; one user's failure never blocks the rest.
func (d *Dispatcher) SendToFarm(ctx context.Context, farmID string, payload Payload, nctx Context) error {
	users, err := d.farms.MembersOf(ctx, farmID)
	if err != nil {
		return err
	}
	for _, userID := range users {
		if err := d.SendToUser(ctx, userID, payload, nctx); err != nil {
			d.log.Error("farm fan-out delivery failed",
				zap.String("farm_id", farmID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}

// SendCritical bypasses preference filtering entirely and forces
// requireInteraction on the payload. Critical alerts are always delivered.
func (d *Dispatcher) SendCritical(ctx context.Context, userIDs []string, payload Payload, _ Context) error {
	payload.RequireInteraction = true
	for _, userID := range userIDs {
		if err := d.deliver(ctx, userID, payload); err != nil {
			d.log.Error("critical delivery failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// checkPreference applies the per-user filter: with no stored preference,
// default-allow at medium priority and above; with one, require enabled and
// priority at or above the preference's minimum.
func (d *Dispatcher) checkPreference(ctx context.Context, userID string, nctx Context) (bool, error) {
	pref, err := d.subs.PreferenceFor(ctx, userID, nctx.AlertType)
	if err != nil {
		return false, err
	}
	rank := alerting.SeverityRank(nctx.Priority)
	if pref == nil {
		return rank >= alerting.SeverityRank(alerting.SeverityMedium), nil
	}
	if !pref.Enabled {
		return false, nil
	}
	return rank >= alerting.SeverityRank(pref.MinPriority), nil
}

// deliver sends to every active subscription. A gone/expired endpoint is
// deactivated in place; other failures are logged and skipped.
func (d *Dispatcher) deliver(ctx context.Context, userID string, payload Payload) error {
	subs, err := d.subs.ActiveForUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	for i := range subs {
		sub := &subs[i]
		err := d.sender.Send(ctx, sub, encoded)
		switch {
		case err == nil:
			observability.PushDeliveries.WithLabelValues(observability.OutcomeSent).Inc()
		case errors.Is(err, ErrEndpointGone):
			observability.PushDeliveries.WithLabelValues(observability.OutcomeGone).Inc()
			d.log.Info("deactivating gone push endpoint",
				zap.String("user_id", userID),
				zap.String("endpoint", sub.Endpoint))
			if err := d.subs.DeactivateSubscription(ctx, userID, sub.Endpoint); err != nil {
				d.log.Error("failed to deactivate gone endpoint", zap.Error(err))
			}
		default:
			observability.PushDeliveries.WithLabelValues(observability.OutcomeFailed).Inc()
			d.log.Warn("push delivery failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}
