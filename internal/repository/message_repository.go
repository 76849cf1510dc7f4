package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
	"github.com/unclebandit/courier-backend/internal/model"
)

// CampaignCounts is one scan over a campaign's ledger rows. delivered
// includes read, matching the aggregation rules.
type CampaignCounts struct {
	Total     int
	Delivered int
	Read      int
	Failed    int
}

type MessageRepositoryInterface interface {
	// Record writes the ledger row for one send attempt. Exactly one row
	// exists per (campaign, recipient); recording again returns the
	// existing row untouched.
	Record(msg *model.Message) error

	// ApplyStatus moves a message forward. The observation is always
	// appended to the status history; the row itself only changes when the
	// transition is allowed. The bool result reports whether it was.
	ApplyStatus(messageID int, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error)
	ApplyStatusByExternalID(externalID string, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error)

	ListByCampaign(campaignID int) ([]*model.Message, error)
	ListStalled(olderThan time.Time) ([]*model.Message, error)
	CountsByCampaign(campaignID int) (CampaignCounts, error)
	HistoryByMessage(messageID int) ([]*model.StatusHistoryEntry, error)
}

type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, campaign_id, recipient_id, tenant_id, status, external_id, last_error, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	var externalID, lastError sql.NullString
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.RecipientID, &m.TenantID, &m.Status,
		&externalID, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ExternalID = externalID.String
	m.LastError = lastError.String
	return &m, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *MessageRepository) Record(msg *model.Message) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	query := `
        INSERT INTO messages (campaign_id, recipient_id, tenant_id, status, external_id, last_error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
        ON CONFLICT (campaign_id, recipient_id) DO NOTHING
        RETURNING id, created_at, updated_at
    `
	err = tx.QueryRow(query,
		msg.CampaignID, msg.RecipientID, msg.TenantID, msg.Status,
		nullable(msg.ExternalID), nullable(msg.LastError), now,
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)

	if err == sql.ErrNoRows {
		// Row already exists for this (campaign, recipient); keep it as is.
		existing, err := scanMessage(tx.QueryRow(
			`SELECT `+messageColumns+` FROM messages WHERE campaign_id=$1 AND recipient_id=$2`,
			msg.CampaignID, msg.RecipientID,
		))
		if err != nil {
			return err
		}
		*msg = *existing
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO message_status_history (message_id, status, observed_at) VALUES ($1, $2, $3)`,
		msg.ID, msg.Status, now,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *MessageRepository) ApplyStatus(messageID int, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error) {
	return r.applyStatus(`SELECT `+messageColumns+` FROM messages WHERE id=$1 FOR UPDATE`, messageID, status, observedAt, lastError)
}

func (r *MessageRepository) ApplyStatusByExternalID(externalID string, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error) {
	msg, applied, err := r.applyStatus(`SELECT `+messageColumns+` FROM messages WHERE external_id=$1 FOR UPDATE`, externalID, status, observedAt, lastError)
	if err == sql.ErrNoRows {
		return nil, false, appErrors.NewUnknownReference(externalID)
	}
	return msg, applied, err
}

func (r *MessageRepository) applyStatus(selectQuery string, key any, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	msg, err := scanMessage(tx.QueryRow(selectQuery, key))
	if err != nil {
		return nil, false, err
	}

	// Every observation lands in the history, stale ones included.
	_, err = tx.Exec(
		`INSERT INTO message_status_history (message_id, status, observed_at) VALUES ($1, $2, $3)`,
		msg.ID, status, observedAt,
	)
	if err != nil {
		return nil, false, err
	}

	applied := model.CanTransition(msg.Status, status)
	if applied {
		err = tx.QueryRow(
			`UPDATE messages SET status=$1, last_error=$2, updated_at=NOW() WHERE id=$3 RETURNING updated_at`,
			status, nullable(lastError), msg.ID,
		).Scan(&msg.UpdatedAt)
		if err != nil {
			return nil, false, err
		}
		msg.Status = status
		msg.LastError = lastError
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return msg, applied, nil
}

func (r *MessageRepository) ListByCampaign(campaignID int) ([]*model.Message, error) {
	rows, err := r.DB.Query(
		`SELECT `+messageColumns+` FROM messages WHERE campaign_id=$1 ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListStalled returns messages still at "sent" whose send predates olderThan.
// Only the reaper calls this.
func (r *MessageRepository) ListStalled(olderThan time.Time) ([]*model.Message, error) {
	rows, err := r.DB.Query(
		`SELECT `+messageColumns+` FROM messages WHERE status=$1 AND created_at < $2 ORDER BY id`,
		model.StatusSent, olderThan,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) CountsByCampaign(campaignID int) (CampaignCounts, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status IN ('delivered', 'read')),
               COUNT(*) FILTER (WHERE status = 'read'),
               COUNT(*) FILTER (WHERE status = 'failed')
        FROM messages
        WHERE campaign_id=$1
    `
	var counts CampaignCounts
	err := r.DB.QueryRow(query, campaignID).Scan(&counts.Total, &counts.Delivered, &counts.Read, &counts.Failed)
	return counts, err
}

func (r *MessageRepository) HistoryByMessage(messageID int) ([]*model.StatusHistoryEntry, error) {
	rows, err := r.DB.Query(
		`SELECT id, message_id, status, observed_at FROM message_status_history WHERE message_id=$1 ORDER BY id`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.StatusHistoryEntry{}
	for rows.Next() {
		var e model.StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Status, &e.ObservedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
