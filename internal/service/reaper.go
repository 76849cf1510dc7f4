// internal/service/reaper.go
package service

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/courier-backend/internal/model"
	"github.com/unclebandit/courier-backend/internal/repository"
)

// TimeoutError is recorded on messages the reaper gives up on.
const TimeoutError = "timeout: no delivery confirmation"

// Reaper forces messages that never got a delivery confirmation to failed.
// This is the one path where a message moves from sent to failed without the
// gateway saying so.
type Reaper struct {
	MessageRepo repository.MessageRepositoryInterface
	Aggregator  *Aggregator
	Notify      Notifier
	Log         zerolog.Logger

	// Timeout is how long a message may sit at "sent" before it is
	// considered lost. Defaults to 15 minutes when unset.
	Timeout time.Duration
}

const defaultReaperTimeout = 15 * time.Minute

// Sweep flips every stalled message and recomputes each affected campaign.
// Returns how many messages were flipped. Safe to rerun: a flipped message
// is terminal and will not be selected again.
func (r *Reaper) Sweep() (int, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultReaperTimeout
	}

	stalled, err := r.MessageRepo.ListStalled(time.Now().Add(-timeout))
	if err != nil {
		return 0, err
	}

	flipped := 0
	affected := map[int]struct{}{}
	for _, m := range stalled {
		msg, applied, err := r.MessageRepo.ApplyStatus(m.ID, model.StatusFailed, time.Now(), TimeoutError)
		if err != nil {
			r.Log.Error().Err(err).Int("message_id", m.ID).Msg("failed to reap message")
			continue
		}
		if !applied {
			continue
		}
		flipped++
		affected[msg.CampaignID] = struct{}{}
		pushMessage(r.Notify, msg)
	}

	for campaignID := range affected {
		campaign, err := r.Aggregator.Recompute(campaignID)
		if err != nil {
			r.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("post-reap recompute failed")
			continue
		}
		pushCampaign(r.Notify, campaign)
	}

	if flipped > 0 {
		r.Log.Info().Int("flipped", flipped).Int("campaigns", len(affected)).Msg("reaped stalled messages")
	}
	return flipped, nil
}
