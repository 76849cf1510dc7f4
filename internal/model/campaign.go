// internal/model/campaign.go
package model

import "time"

// CampaignStatus is derived from the ledger by the aggregator. No other
// component writes it.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPartial   CampaignStatus = "partial"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

type Campaign struct {
	ID             int            `db:"id" json:"id"`
	TenantID       int            `db:"tenant_id" json:"tenant_id"`
	Name           string         `db:"name" json:"name"`
	BaseTemplate   string         `db:"base_template" json:"base_template"`
	Status         CampaignStatus `db:"status" json:"status"`
	RecipientCount int            `db:"recipient_count" json:"recipient_count"`
	DeliveredCount int            `db:"delivered_count" json:"delivered_count"`
	FailedCount    int            `db:"failed_count" json:"failed_count"`
	ReadCount      int            `db:"read_count" json:"read_count"`
	ScheduledAt    *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
