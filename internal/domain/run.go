package domain

import "time"

// RunState is the orchestrator's state machine position.
type RunState string

const (
	StateInit       RunState = "init"
	StateFetching   RunState = "fetching"
	StateProcessing RunState = "processing"
	StateFinalizing RunState = "finalizing"
	StateCompleted  RunState = "completed"
	StateAborted    RunState = "aborted"
)

// RunOutcome is the terminal result recorded for a run.
type RunOutcome string

const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomePartial   RunOutcome = "partial"
	OutcomeAborted   RunOutcome = "aborted"
)

// ProcessingLimits bounds a single run. All values must be positive.
type ProcessingLimits struct {
	MaxMessagesPerRun int           `json:"max_messages_per_run"`
	MaxDraftsPerRun   int           `json:"max_drafts_per_run"`
	MaxDuration       time.Duration `json:"max_duration"`
	InterCallDelay    time.Duration `json:"inter_call_delay"`
}

// Validate reports the first invalid limit, if any.
func (l ProcessingLimits) Validate() error {
	switch {
	case l.MaxMessagesPerRun <= 0:
		return ValidationError{Field: "max_messages_per_run", Reason: "must be > 0"}
	case l.MaxDraftsPerRun <= 0:
		return ValidationError{Field: "max_drafts_per_run", Reason: "must be > 0"}
	case l.MaxDuration <= 0:
		return ValidationError{Field: "max_duration", Reason: "must be > 0"}
	case l.InterCallDelay <= 0:
		return ValidationError{Field: "inter_call_delay", Reason: "must be > 0"}
	}
	return nil
}

// ValidationError marks malformed configuration. Fatal at run INIT.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return "invalid config: " + e.Field + " " + e.Reason
}

// RunStats is the per-run aggregate. Mutable while the run is in
// PROCESSING, frozen at FINALIZING (Frozen=true); mutators are no-ops
// after the freeze.
type RunStats struct {
	RunID              string                `json:"run_id"`
	StartedAt          time.Time             `json:"started_at"`
	FinishedAt         time.Time             `json:"finished_at"`
	Outcome            RunOutcome            `json:"outcome"`
	EmailsProcessed    int                   `json:"emails_processed"`
	SpamDeleted        int                   `json:"spam_deleted"`
	DraftsCreated      int                   `json:"drafts_created"`
	UnsubscribeFlagged int                   `json:"unsubscribe_flagged"`
	Skipped            int                   `json:"skipped"`
	Errors             int                   `json:"errors"`
	Categories         map[CategoryLabel]int `json:"categories"`
	Frozen             bool                  `json:"-"`
}

// NewRunStats creates the mutable aggregate for a starting run.
func NewRunStats(runID string, start time.Time) *RunStats {
	return &RunStats{
		RunID:      runID,
		StartedAt:  start,
		Categories: make(map[CategoryLabel]int),
	}
}

// CountCategory records one classified message.
func (s *RunStats) CountCategory(label CategoryLabel) {
	if s.Frozen {
		return
	}
	s.Categories[label]++
}

// Freeze finalizes the aggregate. Further mutation is ignored.
func (s *RunStats) Freeze(end time.Time, outcome RunOutcome) {
	if s.Frozen {
		return
	}
	s.FinishedAt = end
	s.Outcome = outcome
	s.Frozen = true
}

// Elapsed returns run duration relative to now (or FinishedAt if frozen).
func (s *RunStats) Elapsed(now time.Time) time.Duration {
	if s.Frozen {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
