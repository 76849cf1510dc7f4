// internal/service/orchestrator.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
	"github.com/unclebandit/courier-backend/internal/gateway"
	"github.com/unclebandit/courier-backend/internal/model"
	"github.com/unclebandit/courier-backend/internal/repository"
)

// BatchReport accumulates per-recipient outcomes for the caller. It is a
// side output only: campaign status is always derived from the ledger, never
// from these tallies.
type BatchReport struct {
	CampaignID int              `json:"campaign_id"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Errors     []RecipientError `json:"errors,omitempty"`
}

type RecipientError struct {
	RecipientID int    `json:"recipient_id"`
	Reason      string `json:"reason"`
}

// Orchestrator fans a campaign out to its recipients. One recipient's
// failure never aborts the batch; every attempt lands in the ledger either
// way.
type Orchestrator struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	MessageRepo   repository.MessageRepositoryInterface
	Aggregator    *Aggregator
	Gateway       gateway.Sender
	Notify        Notifier
	Log           zerolog.Logger

	// Limiter throttles gateway calls across the whole batch; nil means
	// unthrottled.
	Limiter     *rate.Limiter
	Concurrency int
	SendTimeout time.Duration
}

// Dispatch sends the campaign to the given recipients, or to every recipient
// of the campaign's tenant when the list is empty. Recipients are dispatched
// concurrently up to Concurrency.
func (o *Orchestrator) Dispatch(ctx context.Context, campaignID int, recipientIDs []int) (*BatchReport, error) {
	campaign, err := o.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	switch campaign.Status {
	case model.CampaignDraft, model.CampaignScheduled, model.CampaignSending:
	default:
		return nil, appErrors.NewValidation(fmt.Sprintf("campaign cannot be sent in status %s", campaign.Status))
	}

	if len(recipientIDs) == 0 {
		recipientIDs, err = o.RecipientRepo.ListIDsByTenant(campaign.TenantID)
		if err != nil {
			return nil, err
		}
	}

	// The ledger must never outgrow the campaign's planned audience, or the
	// derived counts could exceed recipientCount. Re-dispatching a recipient
	// that already has a row is fine; targeting a new one past the plan is
	// not.
	existing, err := o.MessageRepo.ListByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	targeted := make(map[int]struct{}, len(existing)+len(recipientIDs))
	for _, m := range existing {
		targeted[m.RecipientID] = struct{}{}
	}
	for _, id := range recipientIDs {
		targeted[id] = struct{}{}
	}
	if len(targeted) > campaign.RecipientCount {
		return nil, appErrors.NewValidation(fmt.Sprintf(
			"dispatch targets %d recipients, campaign expects at most %d", len(targeted), campaign.RecipientCount))
	}

	report := &BatchReport{CampaignID: campaignID, Total: len(recipientIDs)}

	concurrency := o.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range recipientIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(recipientID int) {
			defer wg.Done()
			defer func() { <-sem }()

			reason := o.dispatchOne(ctx, campaign, recipientID)

			mu.Lock()
			defer mu.Unlock()
			if reason == "" {
				report.Succeeded++
			} else {
				report.Failed++
				report.Errors = append(report.Errors, RecipientError{RecipientID: recipientID, Reason: reason})
			}
		}(id)
	}
	wg.Wait()

	// One recompute for the whole batch.
	updated, err := o.Aggregator.Recompute(campaignID)
	if err != nil {
		o.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("post-batch recompute failed")
		return report, nil
	}
	pushCampaign(o.Notify, updated)

	return report, nil
}

// dispatchOne sends to a single recipient and records the outcome in the
// ledger. Returns an empty string on success, otherwise the failure reason.
func (o *Orchestrator) dispatchOne(ctx context.Context, campaign *model.Campaign, recipientID int) string {
	record := func(status model.MessageStatus, externalID, sendErr string) string {
		msg := &model.Message{
			CampaignID:  campaign.ID,
			RecipientID: recipientID,
			TenantID:    campaign.TenantID,
			Status:      status,
			ExternalID:  externalID,
			LastError:   sendErr,
		}
		if err := o.MessageRepo.Record(msg); err != nil {
			o.Log.Error().Err(err).Int("campaign_id", campaign.ID).Int("recipient_id", recipientID).
				Msg("failed to record ledger entry")
			return "ledger write failed: " + err.Error()
		}
		return sendErr
	}

	recipient, err := o.RecipientRepo.GetByID(recipientID)
	if err != nil {
		return record(model.StatusFailed, "", "recipient lookup failed: "+err.Error())
	}
	if recipient == nil {
		return record(model.StatusFailed, "", fmt.Sprintf("recipient %d not found", recipientID))
	}
	if recipient.Phone == "" {
		return record(model.StatusFailed, "", fmt.Sprintf("recipient %d has no phone number", recipientID))
	}

	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			return record(model.StatusFailed, "", "dispatch cancelled: "+err.Error())
		}
	}

	payload := RenderTemplate(campaign.BaseTemplate, RecipientData(recipient))

	sendCtx := ctx
	if o.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, o.SendTimeout)
		defer cancel()
	}

	result, err := o.Gateway.Send(sendCtx, recipient, payload)
	if err != nil {
		gwErr := appErrors.NewGateway(recipientID, err)
		return record(model.StatusFailed, "", gwErr.Error())
	}

	if result.Status == model.StatusFailed {
		return record(model.StatusFailed, result.ExternalID, "gateway rejected message")
	}
	return record(result.Status, result.ExternalID, "")
}
