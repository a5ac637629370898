package run

import (
	"context"
	"errors"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/ignite/inbox-assistant/internal/domain"
)

// ErrLocked is returned when another run holds the process-level run lock.
var ErrLocked = errors.New("another run is in progress")

// MailService is the external mail collaborator. All mutating calls are
// idempotent from the orchestrator's perspective.
type MailService interface {
	// FetchBatch returns up to limit full messages newer than since, plus
	// the next page cursor ("" on the last page). Ordering is the
	// service's contract and is not reordered by the orchestrator.
	FetchBatch(ctx context.Context, limit int64, since time.Time, cursor string) ([]*gmail.Message, string, error)

	// ApplyLabel adds a label to a message; re-applying is a no-op.
	ApplyLabel(ctx context.Context, messageID, labelID string) error

	// Delete moves a message to trash.
	Delete(ctx context.Context, messageID string) error

	// CreateDraft creates (never sends) a reply draft on the thread and
	// returns the service-side draft ID.
	CreateDraft(ctx context.Context, threadID, to, subject, body string) (string, error)
}

// Repository is the persistence contract. Implementations must be safe
// for concurrent use.
type Repository interface {
	// AppendDecision writes one immutable audit record.
	AppendDecision(ctx context.Context, d *domain.Decision) error

	// WasDecided reports whether the message already has a clean decision.
	WasDecided(ctx context.Context, messageID string) (bool, error)

	// IsProcessed / MarkProcessed maintain the processed-set keyed by
	// (message_id, action) that makes reruns safe.
	IsProcessed(ctx context.Context, messageID string, action domain.ActionKind) (bool, error)
	MarkProcessed(ctx context.Context, messageID string, action domain.ActionKind, runID string) error

	// SaveDraft upserts a draft candidate keyed by message ID.
	SaveDraft(ctx context.Context, d *domain.DraftCandidate) error

	// UpsertRunStats persists the run status record keyed by run ID.
	UpsertRunStats(ctx context.Context, stats *domain.RunStats) error

	// LastCompletedRun returns when the latest successful run finished
	// (zero time when none), which drives the fetch window.
	LastCompletedRun(ctx context.Context) (time.Time, error)

	// LogActivity appends one activity log row.
	LogActivity(ctx context.Context, e *domain.ActivityEntry) error

	// UpdateDailyStats folds a finished run into the per-day rollup.
	UpdateDailyStats(ctx context.Context, stats *domain.RunStats) error
}

// Limiter throttles and retries external calls.
type Limiter interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
