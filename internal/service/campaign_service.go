// internal/service/campaign_service.go
package service

import (
	"encoding/json"
	"strings"
	"time"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
	"github.com/unclebandit/courier-backend/internal/model"
	"github.com/unclebandit/courier-backend/internal/queue"
	"github.com/unclebandit/courier-backend/internal/repository"
)

// CampaignService covers the thin CRUD surface around the delivery pipeline.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Queue        queue.Publisher
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

func (s *CampaignService) CreateCampaign(tenantID int, name, baseTemplate string, recipientCount int, scheduledAt *string) (*model.Campaign, error) {
	if strings.TrimSpace(name) == "" {
		return nil, appErrors.NewValidation("campaign name is required")
	}
	if recipientCount < 0 {
		return nil, appErrors.NewValidation("recipient count cannot be negative")
	}

	c := &model.Campaign{
		TenantID:       tenantID,
		Name:           name,
		BaseTemplate:   baseTemplate,
		RecipientCount: recipientCount,
		Status:         model.CampaignDraft,
	}

	if scheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *scheduledAt)
		if err != nil {
			return nil, appErrors.NewValidation("scheduled_at must be RFC3339")
		}
		c.ScheduledAt = &t
		c.Status = model.CampaignScheduled
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// RequestSend validates the campaign and enqueues a dispatch job. The actual
// fan-out happens on a worker consuming the queue.
func (s *CampaignService) RequestSend(campaignID int, recipientIDs []int) error {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}

	switch campaign.Status {
	case model.CampaignDraft, model.CampaignScheduled, model.CampaignSending:
	default:
		return appErrors.NewValidation("campaign cannot be sent in status " + string(campaign.Status))
	}

	body, err := json.Marshal(queue.DispatchJob{CampaignID: campaignID, RecipientIDs: recipientIDs})
	if err != nil {
		return err
	}
	return s.Queue.Publish(queue.DispatchTopic, body)
}

// ListCampaigns fetches one tenant's campaigns with pagination.
func (s *CampaignService) ListCampaigns(page, pageSize, tenantID int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, tenantID, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignDetails returns a campaign with a per-status breakdown of its
// ledger rows. The breakdown is informational; the authoritative counts live
// on the campaign itself.
func (s *CampaignService) GetCampaignDetails(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	messages, err := s.MessageRepo.ListByCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{
		"total":     0,
		"queued":    0,
		"sent":      0,
		"delivered": 0,
		"read":      0,
		"failed":    0,
	}
	for _, m := range messages {
		stats[string(m.Status)]++
		stats["total"]++
	}

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// GetMessageHistory returns the full status trail of one message, stale
// observations included.
func (s *CampaignService) GetMessageHistory(messageID int) ([]*model.StatusHistoryEntry, error) {
	return s.MessageRepo.HistoryByMessage(messageID)
}
