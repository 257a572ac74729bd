package notify

import (
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"go.uber.org/zap"
)

// OperatorNotifier mirrors critical alerts to operator channels (Telegram,
// Slack, email and the like) via shoutrrr service URLs. It is best effort
// and never blocks push delivery.
type OperatorNotifier struct {
	sender *router.ServiceRouter
	log    *zap.Logger
}

// NewOperatorNotifier builds a notifier from configured service URLs.
// An empty URL list yields a nil notifier; callers treat nil as disabled.
func NewOperatorNotifier(urls []string, log *zap.Logger) (*OperatorNotifier, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("invalid operator notification URL: %w", err)
	}
	return &OperatorNotifier{sender: sender, log: log}, nil
}

// Notify sends one message to every configured service.
func (o *OperatorNotifier) Notify(title, body string) {
	if o == nil {
		return
	}
	params := &types.Params{"title": title}
	for _, err := range o.sender.Send(body, params) {
		if err != nil {
			o.log.Warn("operator notification failed", zap.Error(err))
		}
	}
}
