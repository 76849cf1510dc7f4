// internal/service/ingestor.go
package service

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
	"github.com/unclebandit/courier-backend/internal/model"
	"github.com/unclebandit/courier-backend/internal/repository"
)

// StatusEvent is one normalized status observation from the gateway.
type StatusEvent struct {
	ExternalID string
	Status     string
	ObservedAt time.Time
	Error      string
}

// Ingestor applies asynchronous gateway status events to the ledger. Events
// may arrive duplicated or out of order; the ledger's transition rule makes
// reapplying them harmless.
type Ingestor struct {
	MessageRepo repository.MessageRepositoryInterface
	Aggregator  *Aggregator
	Notify      Notifier
	Log         zerolog.Logger
}

// statusVocabulary maps the gateway's status strings to the internal enum.
var statusVocabulary = map[string]model.MessageStatus{
	"sent":      model.StatusSent,
	"delivered": model.StatusDelivered,
	"read":      model.StatusRead,
	"failed":    model.StatusFailed,
}

// Ingest processes one event. Unknown status values and unknown external IDs
// are dropped, not errored: the gateway retries deliveries, and an event this
// system cannot use will never become usable.
func (i *Ingestor) Ingest(ev StatusEvent) error {
	status, ok := statusVocabulary[ev.Status]
	if !ok {
		i.Log.Debug().Str("status", ev.Status).Str("external_id", ev.ExternalID).
			Msg("dropping event with unknown status")
		return nil
	}

	observedAt := ev.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	msg, applied, err := i.MessageRepo.ApplyStatusByExternalID(ev.ExternalID, status, observedAt, ev.Error)
	if err != nil {
		var unknownRef *appErrors.ErrUnknownReference
		if errors.As(err, &unknownRef) {
			i.Log.Warn().Str("external_id", ev.ExternalID).
				Msg("dropping event for message this system never created")
			return nil
		}
		return err
	}

	if !applied {
		// Stale or duplicate event; it was recorded in the history and
		// nothing else changes.
		return nil
	}

	pushMessage(i.Notify, msg)
	i.Aggregator.Trigger(msg.CampaignID)
	return nil
}
