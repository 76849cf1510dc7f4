package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
	"github.com/unclebandit/courier-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit, tenantID int, status string) ([]*model.Campaign, int, error)

	// UpdateAggregates writes the derived status and counts. The aggregator
	// is the only caller; nothing else touches these columns.
	UpdateAggregates(campaignID int, status model.CampaignStatus, delivered, failed, read int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, tenant_id, name, base_template, status, recipient_count,
	delivered_count, failed_count, read_count, scheduled_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.BaseTemplate, &c.Status, &c.RecipientCount,
		&c.DeliveredCount, &c.FailedCount, &c.ReadCount, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
        INSERT INTO campaigns (tenant_id, name, base_template, status, recipient_count, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.TenantID, c.Name, c.BaseTemplate, c.Status, c.RecipientCount, c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit, tenantID int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE tenant_id=$1`
	countArgs := []interface{}{tenantID}
	if status != "" {
		countQuery += " AND status=$2"
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateAggregates(campaignID int, status model.CampaignStatus, delivered, failed, read int) error {
	query := `
        UPDATE campaigns
        SET status=$1, delivered_count=$2, failed_count=$3, read_count=$4, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, status, delivered, failed, read, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
