package repository_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
	"github.com/unclebandit/courier-backend/internal/model"
	"github.com/unclebandit/courier-backend/internal/repository"
)

func newMock(t *testing.T) (*repository.MessageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &repository.MessageRepository{DB: db}, mock
}

func messageRow(id int, status model.MessageStatus, externalID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "campaign_id", "recipient_id", "tenant_id", "status", "external_id", "last_error", "created_at", "updated_at",
	}).AddRow(id, 1, 1, 7, string(status), externalID, nil, now, now)
}

func TestApplyStatusAcceptedTransition(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE external_id=\$1 FOR UPDATE`).
		WithArgs("wamid.1").
		WillReturnRows(messageRow(10, model.StatusSent, "wamid.1"))
	mock.ExpectExec(`INSERT INTO message_status_history`).
		WithArgs(10, "delivered", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`UPDATE messages SET status=\$1`).
		WithArgs("delivered", sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	msg, applied, err := repo.ApplyStatusByExternalID("wamid.1", model.StatusDelivered, time.Now(), "")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.StatusDelivered, msg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A stale event still lands in the history but leaves the row untouched.
func TestApplyStatusStaleEvent(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE external_id=\$1 FOR UPDATE`).
		WithArgs("wamid.1").
		WillReturnRows(messageRow(10, model.StatusRead, "wamid.1"))
	mock.ExpectExec(`INSERT INTO message_status_history`).
		WithArgs(10, "delivered", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	msg, applied, err := repo.ApplyStatusByExternalID("wamid.1", model.StatusDelivered, time.Now(), "")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, model.StatusRead, msg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStatusUnknownExternalID(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE external_id=\$1 FOR UPDATE`).
		WithArgs("wamid.ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, _, err := repo.ApplyStatusByExternalID("wamid.ghost", model.StatusDelivered, time.Now(), "")
	var unknownRef *appErrors.ErrUnknownReference
	require.ErrorAs(t, err, &unknownRef)
	assert.Equal(t, "wamid.ghost", unknownRef.ExternalID)
}

func TestRecordInsertsRowAndHistory(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(1, 2, 7, "sent", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, now, now))
	mock.ExpectExec(`INSERT INTO message_status_history`).
		WithArgs(10, "sent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	msg := &model.Message{CampaignID: 1, RecipientID: 2, TenantID: 7, Status: model.StatusSent, ExternalID: "wamid.1"}
	require.NoError(t, repo.Record(msg))
	assert.Equal(t, 10, msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Recording the same (campaign, recipient) twice keeps the original row.
func TestRecordExistingRowIsReturned(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(1, 2, 7, "sent", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"})) // conflict, nothing returned
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE campaign_id=\$1 AND recipient_id=\$2`).
		WithArgs(1, 2).
		WillReturnRows(messageRow(10, model.StatusDelivered, "wamid.1"))
	mock.ExpectCommit()

	msg := &model.Message{CampaignID: 1, RecipientID: 2, TenantID: 7, Status: model.StatusSent}
	require.NoError(t, repo.Record(msg))
	assert.Equal(t, 10, msg.ID)
	assert.Equal(t, model.StatusDelivered, msg.Status)
}

func TestCountsByCampaign(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count", "delivered", "read", "failed"}).AddRow(5, 3, 1, 1))

	counts, err := repo.CountsByCampaign(1)
	require.NoError(t, err)
	assert.Equal(t, repository.CampaignCounts{Total: 5, Delivered: 3, Read: 1, Failed: 1}, counts)
}

func TestListStalledFiltersOnStatusAndAge(t *testing.T) {
	repo, mock := newMock(t)
	cutoff := time.Now().Add(-15 * time.Minute)

	mock.ExpectQuery(`SELECT .+ FROM messages WHERE status=\$1 AND created_at < \$2`).
		WithArgs("sent", cutoff).
		WillReturnRows(messageRow(10, model.StatusSent, "wamid.1"))

	stalled, err := repo.ListStalled(cutoff)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, model.StatusSent, stalled[0].Status)
}
