package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/listforge/listforge/internal/automation"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/publish"
	"github.com/listforge/listforge/internal/ratelimit"
)

const (
	defaultRelistSchedule = "0 3 * * *" // daily at 03:00
	defaultRelistAfter    = 720 * time.Hour
	relistBatchLimit      = 10
)

// RelistDraftStore is the draft surface the relist worker needs.
type RelistDraftStore interface {
	ListPublishedBefore(ctx context.Context, cutoff string, limit int) ([]domain.Draft, error)
	UpdateListing(ctx context.Context, id, listingID, listingURL string) error
}

// RelistLogStore records relist attempts in the publish log.
type RelistLogStore interface {
	AppendLog(ctx context.Context, e *domain.PublishLogEntry) error
}

// RelistWorker refreshes stale published listings on a cron schedule:
// each aged listing is delisted and re-submitted so it re-enters the
// marketplace's fresh feed. All actions run through the same session,
// pacing and identity as first-time publishes.
type RelistWorker struct {
	drafts   RelistDraftStore
	log      RelistLogStore
	sessions publish.SessionOpener
	client   automation.Client
	pacer    *ratelimit.Pacer
	logger   logger.Logger

	schedule    string
	relistAfter time.Duration
	cron        *cron.Cron
	entryID     cron.EntryID
}

// RelistWorkerConfig holds configuration options
type RelistWorkerConfig struct {
	Schedule    string
	RelistAfter time.Duration
}

// NewRelistWorker creates a new relist worker
func NewRelistWorker(
	drafts RelistDraftStore,
	logStore RelistLogStore,
	sessions publish.SessionOpener,
	client automation.Client,
	pacer *ratelimit.Pacer,
	cfg RelistWorkerConfig,
	log logger.Logger,
) *RelistWorker {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultRelistSchedule
	}
	if cfg.RelistAfter <= 0 {
		cfg.RelistAfter = defaultRelistAfter
	}

	return &RelistWorker{
		drafts:      drafts,
		log:         logStore,
		sessions:    sessions,
		client:      client,
		pacer:       pacer,
		logger:      log,
		schedule:    cfg.Schedule,
		relistAfter: cfg.RelistAfter,
		cron:        cron.New(),
	}
}

// Start schedules the relist job.
func (w *RelistWorker) Start(ctx context.Context) error {
	id, err := w.cron.AddFunc(w.schedule, func() {
		w.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule relist job: %w", err)
	}
	w.entryID = id
	w.cron.Start()

	w.logger.Info("relist worker started",
		logger.String("schedule", w.schedule),
		logger.Duration("relist_after", w.relistAfter))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *RelistWorker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("relist worker stopped")
}

// RunOnce refreshes one round of stale listings.
func (w *RelistWorker) RunOnce(ctx context.Context) {
	cutoff := w.relistAfter.String()
	stale, err := w.drafts.ListPublishedBefore(ctx, cutoff, relistBatchLimit)
	if err != nil {
		w.logger.Error("failed to list stale listings", logger.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	creds, session, err := w.sessions.OpenSession(ctx)
	if err != nil {
		w.logger.Warn("relist skipped, no valid session", logger.Error(err))
		return
	}
	defer creds.Destroy()

	release, err := w.pacer.AcquireSession(ctx)
	if err != nil {
		return
	}
	defer release()

	for i := range stale {
		w.relistOne(ctx, creds.Bytes(), session.Identity, &stale[i])
	}
}

func (w *RelistWorker) relistOne(ctx context.Context, creds []byte, identity domain.ClientIdentity, draft *domain.Draft) {
	if draft.ListingID == nil {
		return
	}

	if err := w.pacer.Wait(ctx); err != nil {
		return
	}
	if err := w.client.DelistListing(ctx, creds, identity, *draft.ListingID); err != nil {
		w.logger.Warn("failed to delist stale listing",
			logger.String("draft_id", draft.ID),
			logger.String("listing_id", *draft.ListingID),
			logger.Error(err))
		w.pacer.OnThrottled()
		return
	}

	if err := w.pacer.Wait(ctx); err != nil {
		return
	}
	outcome, err := w.client.PublishListing(ctx, creds, identity, draft)
	if err != nil {
		w.logger.Error("failed to re-list listing",
			logger.String("draft_id", draft.ID),
			logger.Error(err))
		w.recordRelist(ctx, draft.ID, domain.PublishFailed, nil, err)
		w.pacer.OnThrottled()
		return
	}

	if err := w.drafts.UpdateListing(ctx, draft.ID, outcome.ListingID, outcome.ListingURL); err != nil {
		w.logger.Error("failed to record new listing id",
			logger.String("draft_id", draft.ID),
			logger.Error(err))
	}
	w.recordRelist(ctx, draft.ID, domain.PublishSuccess, outcome, nil)
	w.pacer.OnSuccess()

	w.logger.Info("stale listing refreshed",
		logger.String("draft_id", draft.ID),
		logger.String("old_listing_id", *draft.ListingID),
		logger.String("new_listing_id", outcome.ListingID))
}

func (w *RelistWorker) recordRelist(ctx context.Context, draftID string, result domain.PublishOutcome, outcome *automation.Outcome, cause error) {
	entry := &domain.PublishLogEntry{
		DraftID:        draftID,
		IdempotencyKey: fmt.Sprintf("relist:%s:%d", draftID, time.Now().Unix()),
		Outcome:        result,
	}
	if outcome != nil {
		entry.ListingID = &outcome.ListingID
		entry.ListingURL = &outcome.ListingURL
	}
	if cause != nil {
		detail := cause.Error()
		entry.ErrorDetail = &detail
	}

	if err := w.log.AppendLog(ctx, entry); err != nil {
		w.logger.Error("failed to log relist attempt",
			logger.String("draft_id", draftID),
			logger.Error(err))
	}
}
