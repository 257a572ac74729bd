package notify

import (
	"context"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
)

// AlertNotifier adapts the dispatcher to the alerting delivery contract.
type AlertNotifier struct {
	dispatcher *Dispatcher
	farms      repository.FarmRepository
	operator   *OperatorNotifier
}

// NewAlertNotifier creates the adapter. operator may be nil.
func NewAlertNotifier(dispatcher *Dispatcher, farms repository.FarmRepository, operator *OperatorNotifier) *AlertNotifier {
	return &AlertNotifier{dispatcher: dispatcher, farms: farms, operator: operator}
}

// NotifyFarm delivers the alert to farm members subject to their
// notification preferences.
func (n *AlertNotifier) NotifyFarm(ctx context.Context, alert *alerting.Alert) error {
	return n.dispatcher.SendToFarm(ctx, alert.FarmID, payloadFromAlert(alert), Context{
		AlertType: alert.Type,
		Priority:  alert.Severity,
	})
}

// NotifyFarmCritical delivers to every farm member regardless of preference
// and mirrors the alert to operator channels.
func (n *AlertNotifier) NotifyFarmCritical(ctx context.Context, alert *alerting.Alert) error {
	n.operator.Notify(alert.Title, alert.Message)

	users, err := n.farms.MembersOf(ctx, alert.FarmID)
	if err != nil {
		return err
	}
	return n.dispatcher.SendCritical(ctx, users, payloadFromAlert(alert), Context{
		AlertType: alert.Type,
		Priority:  alert.Severity,
	})
}

func payloadFromAlert(alert *alerting.Alert) Payload {
	data := map[string]any{
		"alert_id": alert.ID,
		"farm_id":  alert.FarmID,
		"type":     alert.Type,
		"severity": alert.Severity,
	}
	for k, v := range alert.Data {
		data[k] = v
	}
	return Payload{
		Title:              alert.Title,
		Body:               alert.Message,
		Tag:                alert.Type + ":" + alert.FarmID,
		Data:               data,
		RequireInteraction: alert.Severity == alerting.SeverityCritical,
	}
}
