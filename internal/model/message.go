// internal/model/message.go
package model

import "time"

// MessageStatus is the delivery state of one outbound message.
type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// rank orders the success path queued < sent < delivered < read.
// failed sits outside the ranking and is handled by CanTransition.
var rank = map[MessageStatus]int{
	StatusQueued:    0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// IsValid reports whether s is one of the known message statuses.
func (s MessageStatus) IsValid() bool {
	_, ok := rank[s]
	return ok || s == StatusFailed
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusRead
}

// CanTransition reports whether a message currently at from may move to to.
// Statuses only move forward along queued -> sent -> delivered -> read;
// failed is accepted from any non-terminal state. Out-of-order or duplicate
// webhook events fall out as a no-op here, the caller still records them
// in the status history for audit.
func CanTransition(from, to MessageStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	toRank, ok := rank[to]
	if !ok {
		return false
	}
	return toRank > rank[from]
}

// Message is one recipient's send attempt within a campaign (a ledger row).
// Exactly one row exists per (campaign, recipient). Created by the
// orchestrator at dispatch time, mutated only through ApplyStatus.
type Message struct {
	ID          int           `db:"id" json:"id"`
	CampaignID  int           `db:"campaign_id" json:"campaign_id"`
	RecipientID int           `db:"recipient_id" json:"recipient_id"`
	TenantID    int           `db:"tenant_id" json:"tenant_id"`
	Status      MessageStatus `db:"status" json:"status"`
	ExternalID  string        `db:"external_id" json:"external_id,omitempty"`
	LastError   string        `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// StatusHistoryEntry is one observed status for a message. Append-only,
// written for every observation including stale ones.
type StatusHistoryEntry struct {
	ID         int           `db:"id" json:"id"`
	MessageID  int           `db:"message_id" json:"message_id"`
	Status     MessageStatus `db:"status" json:"status"`
	ObservedAt time.Time     `db:"observed_at" json:"observed_at"`
}
