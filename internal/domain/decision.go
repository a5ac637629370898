package domain

import "time"

// ActionKind enumerates the mutating actions the orchestrator can take.
// The processed-set is keyed by (message_id, action_kind), so an action
// is applied to a given message at most once across runs.
type ActionKind string

const (
	ActionApplyLabel      ActionKind = "apply_label"
	ActionDeleteSpam      ActionKind = "delete_spam"
	ActionFlagUnsubscribe ActionKind = "flag_unsubscribe"
	ActionCreateDraft     ActionKind = "create_draft"
)

// ErrorKind classifies a failure for the audit trail.
type ErrorKind string

const (
	ErrKindTransient  ErrorKind = "transient"
	ErrKindValidation ErrorKind = "validation"
	ErrKindData       ErrorKind = "data"
)

// Decision is the immutable audit record for one processed message.
// Append-only; never mutated after creation.
type Decision struct {
	ID        string        `json:"id" db:"id"`
	MessageID string        `json:"message_id" db:"message_id"`
	Category  CategoryLabel `json:"category" db:"category"`
	SpamScore float64       `json:"spam_score" db:"spam_score"`
	IsSpam    bool          `json:"is_spam" db:"is_spam"`
	Keywords  []string      `json:"matched_keywords,omitempty"`
	Actions   []ActionKind  `json:"actions" db:"actions"`
	Error     string        `json:"error,omitempty" db:"error"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty" db:"error_kind"`
	Stage     string        `json:"stage,omitempty" db:"stage"`
	DecidedAt time.Time     `json:"decided_at" db:"decided_at"`
}

// ActivityEntry is one row in the activity log consumed by the dashboard.
type ActivityEntry struct {
	ID         string         `json:"id" db:"id"`
	ActionType string         `json:"action_type" db:"action_type"`
	MessageID  string         `json:"message_id,omitempty" db:"message_id"`
	Detail     string         `json:"detail" db:"detail"`
	Status     string         `json:"status" db:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ElapsedMS  int64          `json:"elapsed_ms,omitempty" db:"elapsed_ms"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
