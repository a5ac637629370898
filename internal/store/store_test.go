package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/inbox-assistant/internal/domain"
)

func setupStoreTest(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestAppendDecision(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectExec(`INSERT INTO decisions`).
		WithArgs(sqlmock.AnyArg(), "msg-1", "business", 0.2, false,
			sqlmock.AnyArg(), sqlmock.AnyArg(), "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := &domain.Decision{
		MessageID: "msg-1",
		Category:  domain.CategoryBusiness,
		SpamScore: 0.2,
		Actions:   []domain.ActionKind{domain.ActionApplyLabel},
		DecidedAt: time.Now().UTC(),
	}
	require.NoError(t, st.AppendDecision(context.Background(), d))
	assert.NotEmpty(t, d.ID, "an ID is assigned when missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWasDecided(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM decisions`).
		WithArgs("msg-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	decided, err := st.WasDecided(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.True(t, decided)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedIsConflictSafe(t *testing.T) {
	st, mock := setupStoreTest(t)

	// ON CONFLICT DO NOTHING means zero rows affected is still success.
	mock.ExpectExec(`INSERT INTO processed_actions`).
		WithArgs("msg-1", "delete_spam", "run-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.MarkProcessed(context.Background(), "msg-1", domain.ActionDeleteSpam, "run-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsProcessed(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM processed_actions`).
		WithArgs("msg-1", "create_draft").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	done, err := st.IsProcessed(context.Background(), "msg-1", domain.ActionCreateDraft)
	require.NoError(t, err)
	assert.False(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDraft(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectExec(`INSERT INTO email_drafts`).
		WithArgs("msg-1", "draft_abc", "alice@example.com", "Alice", "Re: Meeting",
			"Hi Alice,", "meeting", 0.82, "business", "pending_approval", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := &domain.DraftCandidate{
		ID:            "draft_abc",
		MessageID:     "msg-1",
		Recipient:     "alice@example.com",
		RecipientName: "Alice",
		Subject:       "Re: Meeting",
		Body:          "Hi Alice,",
		ResponseType:  domain.ResponseMeeting,
		Confidence:    0.82,
		Category:      domain.CategoryBusiness,
		Status:        domain.DraftPendingApproval,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.SaveDraft(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRunStats(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectExec(`INSERT INTO run_status`).
		WithArgs("run-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats := domain.NewRunStats("run-1", time.Now().UTC())
	stats.EmailsProcessed = 5
	stats.Freeze(time.Now().UTC(), domain.OutcomeCompleted)

	require.NoError(t, st.UpsertRunStats(context.Background(), stats))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastCompletedRun(t *testing.T) {
	st, mock := setupStoreTest(t)

	finished := time.Date(2026, 8, 27, 19, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT MAX\(finished_at\) FROM run_status`).
		WithArgs("completed", "partial").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(finished))

	got, err := st.LastCompletedRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, finished, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastCompletedRunEmpty(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectQuery(`SELECT MAX\(finished_at\) FROM run_status`).
		WithArgs("completed", "partial").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	got, err := st.LastCompletedRun(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogActivityDefaults(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectExec(`INSERT INTO activity_logs`).
		WithArgs(sqlmock.AnyArg(), "email_processed", "msg-1", "processed: hello",
			"success", sqlmock.AnyArg(), int64(12), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &domain.ActivityEntry{
		ActionType: "email_processed",
		MessageID:  "msg-1",
		Detail:     "processed: hello",
		Metadata:   map[string]any{"category": "business"},
		ElapsedMS:  12,
	}
	require.NoError(t, st.LogActivity(context.Background(), e))
	assert.Equal(t, "success", e.Status)
	assert.Contains(t, e.ID, "log_")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDailyStats(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectExec(`INSERT INTO email_statistics`).
		WithArgs(sqlmock.AnyArg(), 10, 2, 3, 1, 4, 1, 2, 0, 0, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats := domain.NewRunStats("run-1", time.Now().UTC())
	stats.EmailsProcessed = 10
	stats.DraftsCreated = 2
	stats.SpamDeleted = 3
	stats.UnsubscribeFlagged = 1
	stats.Errors = 1
	stats.Categories[domain.CategoryBusiness] = 4
	stats.Categories[domain.CategoryPersonal] = 1
	stats.Categories[domain.CategoryPromotional] = 2

	require.NoError(t, st.UpdateDailyStats(context.Background(), stats))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRun(t *testing.T) {
	st, mock := setupStoreTest(t)

	started := time.Date(2026, 8, 28, 7, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Minute)
	mock.ExpectQuery(`SELECT run_id, started_at, finished_at, outcome, stats`).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "started_at", "finished_at", "outcome", "stats"}).
			AddRow("run-1", started, finished, "completed", []byte(`{"run_id":"run-1"}`)))

	sum, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, domain.OutcomeCompleted, sum.Outcome)
	require.NotNil(t, sum.FinishedAt)
	assert.Equal(t, finished, *sum.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRunNoRows(t *testing.T) {
	st, mock := setupStoreTest(t)

	mock.ExpectQuery(`SELECT run_id, started_at, finished_at, outcome, stats`).
		WillReturnError(sql.ErrNoRows)

	sum, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingDrafts(t *testing.T) {
	st, mock := setupStoreTest(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, message_id, recipient`).
		WithArgs("pending_approval", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "message_id", "recipient", "recipient_name", "subject", "body",
			"response_type", "confidence", "category", "status", "created_at",
		}).AddRow("draft_1", "msg-1", "alice@example.com", "Alice", "Re: Hi", "body",
			"question", 0.7, "business", "pending_approval", now))

	drafts, err := st.PendingDrafts(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, domain.DraftPendingApproval, drafts[0].Status)
	assert.Equal(t, domain.ResponseQuestion, drafts[0].ResponseType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
