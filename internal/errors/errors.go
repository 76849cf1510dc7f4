// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is returned when a campaign id has no row.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrValidation rejects malformed input before dispatch. Nothing that fails
// validation at the campaign level enters the ledger.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return "validation: " + e.Reason
}

func NewValidation(reason string) error {
	return &ErrValidation{Reason: reason}
}

// ErrGateway wraps a failed send gateway call for one recipient. Recorded as
// a failed ledger entry, never aborts the batch.
type ErrGateway struct {
	RecipientID int
	Err         error
}

func (e *ErrGateway) Error() string {
	return fmt.Sprintf("gateway send to recipient %d failed: %v", e.RecipientID, e.Err)
}

func (e *ErrGateway) Unwrap() error { return e.Err }

func NewGateway(recipientID int, err error) error {
	return &ErrGateway{RecipientID: recipientID, Err: err}
}

// ErrUnknownReference means a webhook event referenced an external id this
// system never created. Logged and dropped by the ingestor.
type ErrUnknownReference struct {
	ExternalID string
}

func (e *ErrUnknownReference) Error() string {
	return fmt.Sprintf("no message with external ID %q", e.ExternalID)
}

func NewUnknownReference(externalID string) error {
	return &ErrUnknownReference{ExternalID: externalID}
}

// ErrConnectionAuth rejects a notification socket handshake. The connection
// is closed with a reason code and never registered.
type ErrConnectionAuth struct {
	Reason string
}

func (e *ErrConnectionAuth) Error() string {
	return "connection auth: " + e.Reason
}

func NewConnectionAuth(reason string) error {
	return &ErrConnectionAuth{Reason: reason}
}
