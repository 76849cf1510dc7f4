package service

import (
	"github.com/unclebandit/courier-backend/internal/model"
)

// Notifier is the push capability the delivery pipeline depends on. The
// concrete hub is injected at composition time; nothing in this package
// knows about connections or sockets.
type Notifier interface {
	Push(tenantID int, event model.Event, excludeConnectionID ...string)
}

// NopNotifier drops every event. Used when no hub is wired, e.g. in the
// worker binary or in tests.
type NopNotifier struct{}

func (NopNotifier) Push(tenantID int, event model.Event, excludeConnectionID ...string) {}

func pushCampaign(n Notifier, c *model.Campaign) {
	if n == nil {
		return
	}
	n.Push(c.TenantID, model.NewEvent(model.EventMessageStatus, map[string]any{
		"campaign": c,
	}))
}

func pushMessage(n Notifier, m *model.Message) {
	if n == nil {
		return
	}
	n.Push(m.TenantID, model.NewEvent(model.EventMessageStatus, map[string]any{
		"message": m,
	}))
}
