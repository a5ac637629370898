// Package store persists decisions, drafts, run records and the
// processed-set in PostgreSQL.
//
// The decisions table is append-only and the audit trail of record; the
// processed-set keyed by (message_id, action) is what makes reruns safe.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/inbox-assistant/internal/domain"
)

// Store is a Postgres-backed repository. Safe for concurrent use.
type Store struct{ db *sql.DB }

// New creates a store over an open database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id               TEXT PRIMARY KEY,
	message_id       TEXT NOT NULL,
	category         TEXT NOT NULL,
	spam_score       DOUBLE PRECISION NOT NULL,
	is_spam          BOOLEAN NOT NULL,
	matched_keywords TEXT[],
	actions          TEXT[],
	error            TEXT NOT NULL DEFAULT '',
	error_kind       TEXT NOT NULL DEFAULT '',
	stage            TEXT NOT NULL DEFAULT '',
	decided_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_message ON decisions(message_id);

CREATE TABLE IF NOT EXISTS processed_actions (
	message_id TEXT NOT NULL,
	action     TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (message_id, action)
);

CREATE TABLE IF NOT EXISTS email_drafts (
	message_id     TEXT PRIMARY KEY,
	id             TEXT NOT NULL,
	recipient      TEXT NOT NULL,
	recipient_name TEXT NOT NULL DEFAULT '',
	subject        TEXT NOT NULL DEFAULT '',
	body           TEXT NOT NULL DEFAULT '',
	response_type  TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS run_status (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	outcome     TEXT NOT NULL DEFAULT '',
	stats       JSONB
);

CREATE TABLE IF NOT EXISTS activity_logs (
	id          TEXT PRIMARY KEY,
	action_type TEXT NOT NULL,
	message_id  TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'success',
	metadata    JSONB,
	elapsed_ms  BIGINT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS email_statistics (
	date                DATE PRIMARY KEY,
	emails_processed    INT NOT NULL DEFAULT 0,
	drafts_created      INT NOT NULL DEFAULT 0,
	spam_deleted        INT NOT NULL DEFAULT 0,
	unsubscribe_actions INT NOT NULL DEFAULT 0,
	business_emails     INT NOT NULL DEFAULT 0,
	personal_emails     INT NOT NULL DEFAULT 0,
	promotional_emails  INT NOT NULL DEFAULT 0,
	social_emails       INT NOT NULL DEFAULT 0,
	other_emails        INT NOT NULL DEFAULT 0,
	error_count         INT NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables if they don't exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// AppendDecision inserts one immutable decision record. Decisions are
// never updated or deleted.
func (s *Store) AppendDecision(ctx context.Context, d *domain.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	actions := make([]string, len(d.Actions))
	for i, a := range d.Actions {
		actions[i] = string(a)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, message_id, category, spam_score, is_spam,
			matched_keywords, actions, error, error_kind, stage, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.MessageID, d.Category, d.SpamScore, d.IsSpam,
		pq.Array(d.Keywords), pq.Array(actions), d.Error, d.ErrorKind, d.Stage, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

// WasDecided reports whether the message already has a clean decision on
// record. Errored messages are not "decided"; a later run retries them.
func (s *Store) WasDecided(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM decisions WHERE message_id = $1 AND error = '')`,
		messageID,
	).Scan(&exists)
	return exists, err
}

// IsProcessed reports whether the action was already applied to the message.
func (s *Store) IsProcessed(ctx context.Context, messageID string, action domain.ActionKind) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_actions WHERE message_id = $1 AND action = $2)`,
		messageID, action,
	).Scan(&exists)
	return exists, err
}

// MarkProcessed records that the action was applied. Re-marking is a no-op.
func (s *Store) MarkProcessed(ctx context.Context, messageID string, action domain.ActionKind, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_actions (message_id, action, run_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, action) DO NOTHING
	`, messageID, action, runID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// SaveDraft upserts a draft candidate keyed by its source message.
func (s *Store) SaveDraft(ctx context.Context, d *domain.DraftCandidate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_drafts (message_id, id, recipient, recipient_name, subject,
			body, response_type, confidence, category, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (message_id) DO UPDATE SET
			status = EXCLUDED.status, confidence = EXCLUDED.confidence,
			body = EXCLUDED.body, updated_at = NOW()
	`, d.MessageID, d.ID, d.Recipient, d.RecipientName, d.Subject,
		d.Body, d.ResponseType, d.Confidence, d.Category, d.Status, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// UpsertRunStats persists the run status record keyed by run ID.
func (s *Store) UpsertRunStats(ctx context.Context, stats *domain.RunStats) error {
	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}
	var finished any
	if !stats.FinishedAt.IsZero() {
		finished = stats.FinishedAt
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_status (run_id, started_at, finished_at, outcome, stats)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at, outcome = EXCLUDED.outcome, stats = EXCLUDED.stats
	`, stats.RunID, stats.StartedAt, finished, stats.Outcome, blob)
	if err != nil {
		return fmt.Errorf("upsert run stats: %w", err)
	}
	return nil
}

// LastCompletedRun returns when the most recent successful (or partial)
// run finished. Zero time when no run has completed yet.
func (s *Store) LastCompletedRun(ctx context.Context) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(finished_at) FROM run_status WHERE outcome IN ($1, $2)
	`, domain.OutcomeCompleted, domain.OutcomePartial).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("last completed run: %w", err)
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}

// LogActivity appends one activity log row.
func (s *Store) LogActivity(ctx context.Context, e *domain.ActivityEntry) error {
	if e.ID == "" {
		e.ID = "log_" + uuid.New().String()
	}
	var metadata any
	if e.Metadata != nil {
		blob, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
		metadata = blob
	}
	if e.Status == "" {
		e.Status = "success"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, action_type, message_id, detail, status, metadata, elapsed_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.ActionType, e.MessageID, e.Detail, e.Status, metadata, e.ElapsedMS, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

// UpdateDailyStats folds a finished run into the per-day rollup consumed
// by the dashboard.
func (s *Store) UpdateDailyStats(ctx context.Context, stats *domain.RunStats) error {
	day := stats.StartedAt.UTC().Truncate(24 * time.Hour)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_statistics (date, emails_processed, drafts_created, spam_deleted,
			unsubscribe_actions, business_emails, personal_emails, promotional_emails,
			social_emails, other_emails, error_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (date) DO UPDATE SET
			emails_processed = email_statistics.emails_processed + EXCLUDED.emails_processed,
			drafts_created = email_statistics.drafts_created + EXCLUDED.drafts_created,
			spam_deleted = email_statistics.spam_deleted + EXCLUDED.spam_deleted,
			unsubscribe_actions = email_statistics.unsubscribe_actions + EXCLUDED.unsubscribe_actions,
			business_emails = email_statistics.business_emails + EXCLUDED.business_emails,
			personal_emails = email_statistics.personal_emails + EXCLUDED.personal_emails,
			promotional_emails = email_statistics.promotional_emails + EXCLUDED.promotional_emails,
			social_emails = email_statistics.social_emails + EXCLUDED.social_emails,
			other_emails = email_statistics.other_emails + EXCLUDED.other_emails,
			error_count = email_statistics.error_count + EXCLUDED.error_count,
			updated_at = NOW()
	`, day, stats.EmailsProcessed, stats.DraftsCreated, stats.SpamDeleted,
		stats.UnsubscribeFlagged,
		stats.Categories[domain.CategoryBusiness], stats.Categories[domain.CategoryPersonal],
		stats.Categories[domain.CategoryPromotional], stats.Categories[domain.CategorySocial],
		stats.Categories[domain.CategoryOther], stats.Errors)
	if err != nil {
		return fmt.Errorf("update daily stats: %w", err)
	}
	return nil
}

// RunSummary is one row of run_status as exposed by the daemon API.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Outcome    domain.RunOutcome `json:"outcome"`
	Stats      json.RawMessage   `json:"stats,omitempty"`
}

// LatestRun returns the most recently started run, or nil when no run
// has ever been recorded.
func (s *Store) LatestRun(ctx context.Context) (*RunSummary, error) {
	var (
		sum      RunSummary
		finished sql.NullTime
		stats    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, outcome, stats
		FROM run_status ORDER BY started_at DESC LIMIT 1
	`).Scan(&sum.RunID, &sum.StartedAt, &finished, &sum.Outcome, &stats)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	if finished.Valid {
		sum.FinishedAt = &finished.Time
	}
	sum.Stats = stats
	return &sum, nil
}

// RecentActivity returns the newest activity log rows, newest first.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_type, message_id, detail, status, metadata, COALESCE(elapsed_ms, 0), created_at
		FROM activity_logs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var (
			e        domain.ActivityEntry
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.ActionType, &e.MessageID, &e.Detail, &e.Status, &metadata, &e.ElapsedMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal activity metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PendingDrafts returns drafts still awaiting user review, newest first.
func (s *Store) PendingDrafts(ctx context.Context, limit int) ([]domain.DraftCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, recipient, recipient_name, subject, body,
			response_type, confidence, category, status, created_at
		FROM email_drafts WHERE status = $1 ORDER BY created_at DESC LIMIT $2
	`, domain.DraftPendingApproval, limit)
	if err != nil {
		return nil, fmt.Errorf("pending drafts: %w", err)
	}
	defer rows.Close()

	var drafts []domain.DraftCandidate
	for rows.Next() {
		var d domain.DraftCandidate
		if err := rows.Scan(&d.ID, &d.MessageID, &d.Recipient, &d.RecipientName, &d.Subject,
			&d.Body, &d.ResponseType, &d.Confidence, &d.Category, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}
