// internal/service/aggregator.go
package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/courier-backend/internal/model"
	"github.com/unclebandit/courier-backend/internal/repository"
)

// Aggregator is the only writer of campaign status and counts. Everything it
// writes is recomputed from a fresh scan of the campaign's ledger rows, so
// concurrent recomputes converge to the same value.
type Aggregator struct {
	CampaignRepo repository.CampaignRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Notify       Notifier
	Log          zerolog.Logger

	// Debounce coalesces rapid Trigger calls per campaign. Zero means
	// Trigger recomputes immediately.
	Debounce time.Duration

	mu      sync.Mutex
	pending map[int]*time.Timer
	stopped bool
}

// DeriveStatus maps ledger counts to a campaign status. First matching rule
// wins. A campaign with no ledger rows has not been dispatched yet.
func DeriveStatus(recipientCount int, counts repository.CampaignCounts) model.CampaignStatus {
	settled := counts.Delivered + counts.Failed
	switch {
	case recipientCount == 0:
		return model.CampaignDraft
	case settled == 0 && counts.Total == 0:
		return model.CampaignScheduled
	case settled < recipientCount:
		return model.CampaignSending
	case counts.Failed == recipientCount:
		return model.CampaignFailed
	case counts.Delivered == recipientCount:
		return model.CampaignCompleted
	default:
		return model.CampaignPartial
	}
}

// Recompute scans the ledger for one campaign and writes the derived status
// and counts back. Idempotent; safe to call from multiple goroutines.
func (a *Aggregator) Recompute(campaignID int) (*model.Campaign, error) {
	campaign, err := a.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	counts, err := a.MessageRepo.CountsByCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	status := DeriveStatus(campaign.RecipientCount, counts)
	if err := a.CampaignRepo.UpdateAggregates(campaignID, status, counts.Delivered, counts.Failed, counts.Read); err != nil {
		return nil, err
	}

	campaign.Status = status
	campaign.DeliveredCount = counts.Delivered
	campaign.FailedCount = counts.Failed
	campaign.ReadCount = counts.Read
	return campaign, nil
}

// Trigger schedules a recompute for the campaign and pushes the result to
// the tenant's connections. Repeated triggers within the debounce window
// collapse into one scan; webhook bursts for the same campaign would
// otherwise rescan the ledger per event.
func (a *Aggregator) Trigger(campaignID int) {
	if a.Debounce <= 0 {
		a.recomputeAndPush(campaignID)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.pending == nil {
		a.pending = make(map[int]*time.Timer)
	}
	if _, ok := a.pending[campaignID]; ok {
		return
	}
	a.pending[campaignID] = time.AfterFunc(a.Debounce, func() {
		a.mu.Lock()
		if a.stopped {
			a.mu.Unlock()
			return
		}
		delete(a.pending, campaignID)
		a.mu.Unlock()
		a.recomputeAndPush(campaignID)
	})
}

// Stop cancels every pending debounced recompute and refuses new triggers.
// Called on shutdown so no timer fires into a torn-down hub.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for id, timer := range a.pending {
		timer.Stop()
		delete(a.pending, id)
	}
}

func (a *Aggregator) recomputeAndPush(campaignID int) {
	campaign, err := a.Recompute(campaignID)
	if err != nil {
		// The next trigger retries; recompute is a pure function of the
		// ledger, so nothing is lost.
		a.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("recompute failed")
		return
	}
	pushCampaign(a.Notify, campaign)
}
