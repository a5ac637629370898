package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/gmail/v1"

	"github.com/ignite/inbox-assistant/internal/classify"
	"github.com/ignite/inbox-assistant/internal/config"
	"github.com/ignite/inbox-assistant/internal/domain"
	"github.com/ignite/inbox-assistant/internal/draft"
	"github.com/ignite/inbox-assistant/internal/normalize"
	"github.com/ignite/inbox-assistant/internal/pkg/logger"
	"github.com/ignite/inbox-assistant/internal/ratelimit"
	"github.com/ignite/inbox-assistant/internal/spam"
	"github.com/ignite/inbox-assistant/internal/unsub"
)

// defaultLookback is the fetch window when no prior run is on record.
const defaultLookback = 8 * time.Hour

// Gmail's built-in category labels per assigned category. Other and
// custom categories get no label action.
var categoryLabels = map[domain.CategoryLabel]string{
	domain.CategoryBusiness:    "CATEGORY_PERSONAL",
	domain.CategoryPersonal:    "CATEGORY_PERSONAL",
	domain.CategoryPromotional: "CATEGORY_PROMOTIONS",
	domain.CategorySocial:      "CATEGORY_SOCIAL",
}

// Runner executes processing runs. Construct with New; one Runner may
// execute many sequential runs but never concurrent ones.
type Runner struct {
	cfg        *config.Config
	mail       MailService
	repo       Repository
	limiter    Limiter
	scorer     *spam.Scorer
	classifier *classify.Classifier
	detector   *unsub.Detector
	generator  *draft.Generator
	now        func() time.Time
}

// New assembles the decision pipeline. Template compilation failures
// surface here, before any run starts.
func New(cfg *config.Config, mail MailService, repo Repository, limiter Limiter) (*Runner, error) {
	gen, err := draft.NewGenerator(cfg.AIResponse)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		mail:       mail,
		repo:       repo,
		limiter:    limiter,
		scorer:     spam.NewScorer(cfg.SpamDetection),
		classifier: classify.NewClassifier(cfg.Categorization),
		detector:   unsub.NewDetector(cfg.Unsubscribe, cfg.SpamDetection.Cutoff()),
		generator:  gen,
		now:        time.Now,
	}, nil
}

// Run executes one full run and returns the frozen stats. The returned
// error is non-nil only for ABORTED outcomes; budget- and limit-bounded
// partial runs finish cleanly.
func (r *Runner) Run(ctx context.Context) (*domain.RunStats, error) {
	runID := uuid.New().String()
	stats := domain.NewRunStats(runID, r.now().UTC())
	logger.Info("run starting", "run_id", runID, "state", domain.StateInit)

	// INIT: validation failures abort before any external call.
	if err := r.cfg.Validate(); err != nil {
		return r.abort(ctx, stats, "init", err)
	}
	limits := r.cfg.ProcessingLimits.Limits()
	deadline := stats.StartedAt.Add(limits.MaxDuration)

	// FETCHING
	logger.Info("fetching batch", "run_id", runID, "state", domain.StateFetching)
	msgs, err := r.fetch(ctx, limits)
	if err != nil {
		return r.abort(ctx, stats, "fetch", err)
	}
	logger.Info("batch fetched", "run_id", runID, "count", len(msgs))

	// PROCESSING
	outcome := domain.OutcomeCompleted
	for _, raw := range msgs {
		if ctx.Err() != nil {
			return r.abort(ctx, stats, "processing", ctx.Err())
		}
		if !r.now().Before(deadline) {
			logger.Warn("max duration reached, finalizing early", "run_id", runID)
			outcome = domain.OutcomePartial
			break
		}

		err := r.processMessage(ctx, raw, stats, limits)
		if errors.Is(err, ratelimit.ErrBudgetExhausted) {
			logger.Warn("call budget exhausted, finalizing early", "run_id", runID)
			outcome = domain.OutcomePartial
			break
		}
		if err != nil && ctx.Err() != nil {
			// Cancelled mid-message: steps that never reached the mail
			// service stay undecided and will be retried next run.
			return r.abort(ctx, stats, "processing", ctx.Err())
		}
		if err != nil {
			// Store failure: the pipeline could not record its own
			// outcome, so count and log the message here. It stays
			// undecided and will be retried next run.
			stats.Errors++
			logger.Error("message errored, skipping", "message_id", raw.Id, "error", err.Error())
		}
	}

	// FINALIZING
	return r.finalize(ctx, stats, outcome)
}

// fetch pages through the batch up to the per-run message quota.
func (r *Runner) fetch(ctx context.Context, limits domain.ProcessingLimits) ([]*gmail.Message, error) {
	since, err := r.repo.LastCompletedRun(ctx)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		since = r.now().Add(-defaultLookback)
	}

	var msgs []*gmail.Message
	cursor := ""
	for len(msgs) < limits.MaxMessagesPerRun {
		var (
			batch []*gmail.Message
			next  string
		)
		err := r.limiter.Do(ctx, func(ctx context.Context) error {
			var callErr error
			batch, next, callErr = r.mail.FetchBatch(ctx,
				int64(limits.MaxMessagesPerRun-len(msgs)), since, cursor)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("fetch batch: %w", err)
		}
		msgs = append(msgs, batch...)
		if next == "" {
			break
		}
		cursor = next
	}
	return msgs, nil
}

// processMessage runs the full decision pipeline for one message and
// applies the derived actions. Per-message transient failures are
// recorded and skipped; only budget exhaustion propagates.
func (r *Runner) processMessage(ctx context.Context, raw *gmail.Message, stats *domain.RunStats, limits domain.ProcessingLimits) error {
	started := r.now()
	rec := normalize.Record(raw)

	decided, err := r.repo.WasDecided(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("check decided: %w", err)
	}
	if decided {
		stats.Skipped++
		logger.Debug("message already decided, skipping", "message_id", rec.ID)
		return nil
	}

	verdict := r.scorer.Score(rec)
	label := r.classifier.Classify(rec)

	decision := &domain.Decision{
		MessageID: rec.ID,
		Category:  label,
		SpamScore: verdict.Score,
		IsSpam:    verdict.IsSpam,
		Keywords:  verdict.MatchedKeywords,
		DecidedAt: r.now().UTC(),
	}

	if verdict.IsSpam {
		if err := r.applyAction(ctx, rec.ID, domain.ActionDeleteSpam, stats.RunID, decision, func(ctx context.Context) error {
			return r.mail.Delete(ctx, rec.ID)
		}); err != nil {
			return r.recordError(ctx, decision, stats, "delete_spam", err)
		}
		stats.SpamDeleted++
		stats.CountCategory(label)
		stats.EmailsProcessed++
		r.logDecision(ctx, decision, rec, started)
		if err := r.repo.AppendDecision(ctx, decision); err != nil {
			return fmt.Errorf("append decision: %w", err)
		}
		return nil
	}

	if labelID, ok := categoryLabels[label]; ok {
		if err := r.applyAction(ctx, rec.ID, domain.ActionApplyLabel, stats.RunID, decision, func(ctx context.Context) error {
			return r.mail.ApplyLabel(ctx, rec.ID, labelID)
		}); err != nil {
			return r.recordError(ctx, decision, stats, "apply_label", err)
		}
	}

	if cand := r.detector.Detect(rec, label, verdict); cand != nil && !cand.Whitelisted {
		// Flagging is a store-side action; no mail call involved.
		already, err := r.repo.IsProcessed(ctx, rec.ID, domain.ActionFlagUnsubscribe)
		if err != nil {
			return fmt.Errorf("flag unsubscribe: %w", err)
		}
		if !already {
			if err := r.repo.LogActivity(ctx, &domain.ActivityEntry{
				ActionType: "unsubscribe_detected",
				MessageID:  rec.ID,
				Detail:     "unsubscribe opportunity: " + truncate(rec.Subject, 50),
				Metadata:   map[string]any{"url": cand.URL, "confidence": cand.Confidence, "source": cand.Source},
			}); err != nil {
				return err
			}
			if err := r.repo.MarkProcessed(ctx, rec.ID, domain.ActionFlagUnsubscribe, stats.RunID); err != nil {
				return err
			}
			decision.Actions = append(decision.Actions, domain.ActionFlagUnsubscribe)
			stats.UnsubscribeFlagged++
		}
	}

	// Drafting stops once the cap is hit; labeling and spam actions continue.
	if stats.DraftsCreated < limits.MaxDraftsPerRun {
		if cand := r.generator.Generate(rec, label); cand != nil {
			if err := r.createDraft(ctx, rec, cand, stats, decision); err != nil {
				return r.recordError(ctx, decision, stats, "create_draft", err)
			}
		}
	}

	stats.CountCategory(label)
	stats.EmailsProcessed++
	r.logDecision(ctx, decision, rec, started)
	if err := r.repo.AppendDecision(ctx, decision); err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

// applyAction runs one mutating mail call exactly once per message across
// runs: check the processed-set, call through the limiter, then mark it.
func (r *Runner) applyAction(ctx context.Context, messageID string, kind domain.ActionKind, runID string, decision *domain.Decision, call func(ctx context.Context) error) error {
	already, err := r.repo.IsProcessed(ctx, messageID, kind)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	if err := r.limiter.Do(ctx, call); err != nil {
		return err
	}
	if err := r.repo.MarkProcessed(ctx, messageID, kind, runID); err != nil {
		return err
	}
	decision.Actions = append(decision.Actions, kind)
	return nil
}

func (r *Runner) createDraft(ctx context.Context, rec domain.EmailRecord, cand *domain.DraftCandidate, stats *domain.RunStats, decision *domain.Decision) error {
	already, err := r.repo.IsProcessed(ctx, rec.ID, domain.ActionCreateDraft)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	err = r.limiter.Do(ctx, func(ctx context.Context) error {
		_, callErr := r.mail.CreateDraft(ctx, rec.ThreadID, cand.Recipient, cand.Subject, cand.Body)
		return callErr
	})
	if err != nil {
		return err
	}
	if err := r.repo.SaveDraft(ctx, cand); err != nil {
		return err
	}
	if err := r.repo.MarkProcessed(ctx, rec.ID, domain.ActionCreateDraft, stats.RunID); err != nil {
		return err
	}
	decision.Actions = append(decision.Actions, domain.ActionCreateDraft)
	stats.DraftsCreated++
	return nil
}

// recordError writes the errored decision and keeps the run going.
// Nothing is silently dropped: the decision row carries the stage and
// error kind for later audit.
func (r *Runner) recordError(ctx context.Context, decision *domain.Decision, stats *domain.RunStats, stage string, err error) error {
	if errors.Is(err, ratelimit.ErrBudgetExhausted) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	decision.Error = err.Error()
	decision.ErrorKind = domain.ErrKindTransient
	decision.Stage = stage
	logger.Error("message errored, skipping", "message_id", decision.MessageID, "stage", stage, "error", err.Error())
	if appendErr := r.repo.AppendDecision(ctx, decision); appendErr != nil {
		// The caller counts the message once the record is lost too.
		return fmt.Errorf("append errored decision: %w", appendErr)
	}
	stats.Errors++
	return nil
}

func (r *Runner) logDecision(ctx context.Context, decision *domain.Decision, rec domain.EmailRecord, started time.Time) {
	elapsed := r.now().Sub(started).Milliseconds()
	_ = r.repo.LogActivity(ctx, &domain.ActivityEntry{
		ActionType: "email_processed",
		MessageID:  rec.ID,
		Detail:     "processed: " + truncate(rec.Subject, 50),
		Metadata: map[string]any{
			"category":   decision.Category,
			"spam_score": decision.SpamScore,
			"actions":    decision.Actions,
		},
		ElapsedMS: elapsed,
	})
	logger.Info("message processed",
		"message_id", rec.ID,
		"category", string(decision.Category),
		"spam_score", fmt.Sprintf("%.2f", decision.SpamScore),
		"actions", fmt.Sprintf("%v", decision.Actions),
	)
}

func (r *Runner) finalize(ctx context.Context, stats *domain.RunStats, outcome domain.RunOutcome) (*domain.RunStats, error) {
	stats.Freeze(r.now().UTC(), outcome)
	if err := r.repo.UpsertRunStats(ctx, stats); err != nil {
		logger.Error("persist run stats failed", "run_id", stats.RunID, "error", err.Error())
	}
	if err := r.repo.UpdateDailyStats(ctx, stats); err != nil {
		logger.Error("update daily stats failed", "run_id", stats.RunID, "error", err.Error())
	}
	_ = r.repo.LogActivity(ctx, &domain.ActivityEntry{
		ActionType: "email_processing_completed",
		Detail:     fmt.Sprintf("run %s: %d processed, %d spam, %d drafts, %d errors", stats.RunID, stats.EmailsProcessed, stats.SpamDeleted, stats.DraftsCreated, stats.Errors),
		Metadata:   map[string]any{"outcome": stats.Outcome},
	})
	logger.Info("run finished",
		"run_id", stats.RunID,
		"state", domain.StateCompleted,
		"outcome", string(stats.Outcome),
		"processed", stats.EmailsProcessed,
		"spam_deleted", stats.SpamDeleted,
		"drafts_created", stats.DraftsCreated,
		"errors", stats.Errors,
		"elapsed", stats.Elapsed(r.now()).String(),
	)
	return stats, nil
}

// abort freezes the stats with an ABORTED outcome and persists what it
// can. Already-applied actions remain; there is no compensating undo.
func (r *Runner) abort(ctx context.Context, stats *domain.RunStats, stage string, cause error) (*domain.RunStats, error) {
	stats.Freeze(r.now().UTC(), domain.OutcomeAborted)
	logger.Error("run aborted", "run_id", stats.RunID, "stage", stage, "error", cause.Error())
	// Best effort: persistence may be the thing that failed.
	persistCtx := ctx
	if persistCtx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	_ = r.repo.UpsertRunStats(persistCtx, stats)
	_ = r.repo.LogActivity(persistCtx, &domain.ActivityEntry{
		ActionType: "email_processing_aborted",
		Detail:     fmt.Sprintf("run %s aborted at %s", stats.RunID, stage),
		Status:     "error",
		Metadata:   map[string]any{"error": cause.Error()},
	})
	return stats, fmt.Errorf("run aborted at %s: %w", stage, cause)
}

// truncate cuts on rune boundaries so multi-byte subjects stay valid
// UTF-8 in activity-log detail fields.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
