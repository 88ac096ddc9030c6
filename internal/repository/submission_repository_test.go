package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkotov/talentflow/internal/model"
)

func TestReviewTransitionsPendingRow(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewSubmissionRepository(gdb)

	mock.ExpectExec(`UPDATE "submissions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "submissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "telegram_id", "kind", "status", "feedback", "payload"}).
			AddRow(int64(3), int64(7), model.SubmissionKindPractical, model.StatusApproved, "Отличная работа", []byte(`{}`)))

	reviewed, err := repo.Review(3, model.StatusApproved, "Отличная работа")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, reviewed.Status)
	assert.Equal(t, "Отличная работа", reviewed.Feedback)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRejectsSecondDecision(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewSubmissionRepository(gdb)

	mock.ExpectExec(`UPDATE "submissions"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Review(3, model.StatusRejected, "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPending(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewSubmissionRepository(gdb)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "submissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	pending, err := repo.HasPending(7, model.SubmissionKindPractical)
	require.NoError(t, err)
	assert.True(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxEnqueueInsertsPendingRow(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewOutboxRepository(gdb)

	mock.ExpectExec(`INSERT INTO "outbox_events"`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Enqueue(nil, 7, model.EventSubmissionReviewed, model.OutboxPayload{
		Kind:   model.SubmissionKindPractical,
		Status: model.StatusApproved,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
