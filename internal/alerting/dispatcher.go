package alerting

import (
	"context"

	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// Broadcaster pushes alerts to live connections. Implemented by the
// realtime hub.
type Broadcaster interface {
	BroadcastAlert(alert *Alert)
}

// Notifier fans an alert out to the farm's users as push notifications.
// Implemented by the notification dispatcher.
type Notifier interface {
	NotifyFarm(ctx context.Context, alert *Alert) error
	// NotifyFarmCritical bypasses per-user preference filtering.
	NotifyFarmCritical(ctx context.Context, alert *Alert) error
}

// ActionDispatcher routes a fired alert through its rule's enabled delivery
// actions. A failure on one action never blocks the others.
type ActionDispatcher struct {
	broadcaster Broadcaster
	notifier    Notifier
	log         *zap.Logger
}

// NewActionDispatcher creates a new ActionDispatcher.
func NewActionDispatcher(broadcaster Broadcaster, notifier Notifier, log *zap.Logger) *ActionDispatcher {
	return &ActionDispatcher{
		broadcaster: broadcaster,
		notifier:    notifier,
		log:         log,
	}
}

// Dispatch delivers the alert through each enabled action.
func (d *ActionDispatcher) Dispatch(ctx context.Context, alert *Alert, actions []entities.AlertAction) {
	for i := range actions {
		action := &actions[i]
		if !action.Enabled {
			continue
		}
		switch action.Channel {
		case ChannelBroadcast:
			d.dispatchBroadcast(alert)
		case ChannelPush:
			d.dispatchPush(ctx, alert)
		default:
			d.log.Warn("unknown alert action channel",
				zap.String("channel", action.Channel),
				zap.String("alert_id", alert.ID))
		}
	}
}

// DispatchAll delivers through both channels unconditionally. Used by manual
// triggers and the fast-path threshold check, which have no rule actions.
func (d *ActionDispatcher) DispatchAll(ctx context.Context, alert *Alert) {
	d.dispatchBroadcast(alert)
	d.dispatchPush(ctx, alert)
}

func (d *ActionDispatcher) dispatchBroadcast(alert *Alert) {
	if d.broadcaster == nil {
		d.log.Warn("broadcast hub not configured, dropping live delivery",
			zap.String("alert_id", alert.ID))
		return
	}
	d.broadcaster.BroadcastAlert(alert)
}

func (d *ActionDispatcher) dispatchPush(ctx context.Context, alert *Alert) {
	if d.notifier == nil {
		d.log.Warn("notification dispatcher not configured, dropping push delivery",
			zap.String("alert_id", alert.ID))
		return
	}
	var err error
	if alert.Severity == SeverityCritical {
		err = d.notifier.NotifyFarmCritical(ctx, alert)
	} else {
		err = d.notifier.NotifyFarm(ctx, alert)
	}
	if err != nil {
		d.log.Error("push delivery failed",
			zap.String("alert_id", alert.ID),
			zap.String("farm_id", alert.FarmID),
			zap.Error(err))
	}
}
