// Package worker provides background workers for the listforge service.
// batch_worker.go implements the photo batch processing worker.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/listforge/listforge/internal/database"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/metrics"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultParallelism  = 3
	defaultStaleJobAge  = 10 * time.Minute
	recoveryInterval    = 1 * time.Minute
)

// Clusterer groups a batch's photos into item clusters.
type Clusterer interface {
	Cluster(ctx context.Context, refs []string, assumeSingleItem bool) ([]domain.ItemCluster, error)
}

// DraftGenerator produces one draft per cluster.
type DraftGenerator interface {
	Generate(ctx context.Context, batchID string, c domain.ItemCluster) (*domain.Draft, error)
}

// BatchWorker polls for pending photo batches, clusters their photos and
// generates one draft per cluster. Progress on a batch only moves forward;
// a crashed run is recovered by resetting the stale claim.
type BatchWorker struct {
	batches   *database.BatchRepository
	drafts    *database.DraftRepository
	clusterer Clusterer
	generator DraftGenerator
	logger    logger.Logger
	tracer    trace.Tracer

	pollInterval time.Duration
	parallelism  int
	staleJobAge  time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// BatchWorkerConfig holds configuration options
type BatchWorkerConfig struct {
	PollInterval time.Duration
	Parallelism  int
	StaleJobAge  time.Duration
}

// NewBatchWorker creates a new batch worker
func NewBatchWorker(
	batches *database.BatchRepository,
	drafts *database.DraftRepository,
	clusterer Clusterer,
	generator DraftGenerator,
	cfg BatchWorkerConfig,
	log logger.Logger,
) *BatchWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.StaleJobAge <= 0 {
		cfg.StaleJobAge = defaultStaleJobAge
	}

	return &BatchWorker{
		batches:      batches,
		drafts:       drafts,
		clusterer:    clusterer,
		generator:    generator,
		logger:       log,
		tracer:       otel.Tracer("batch-worker"),
		pollInterval: cfg.PollInterval,
		parallelism:  cfg.Parallelism,
		staleJobAge:  cfg.StaleJobAge,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the batch polling loop
func (w *BatchWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runRecovery(ctx)

	w.logger.Info("batch worker started",
		logger.Duration("poll_interval", w.pollInterval),
		logger.Int("parallelism", w.parallelism))
}

// Stop gracefully stops the worker
func (w *BatchWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("batch worker stopped")
}

// IsRunning returns whether the worker is currently running
func (w *BatchWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *BatchWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.processOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *BatchWorker) processOnce(ctx context.Context) {
	claimed, err := w.batches.ClaimPending(ctx, w.parallelism)
	if err != nil {
		w.logger.Error("failed to claim pending batches", logger.Error(err))
		return
	}
	if len(claimed) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range claimed {
		batch := claimed[i]
		g.Go(func() error {
			w.processBatch(gctx, &batch)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *BatchWorker) processBatch(ctx context.Context, batch *domain.PhotoBatch) {
	ctx, span := w.tracer.Start(ctx, "batch.process",
		trace.WithAttributes(
			attribute.String("batch_id", batch.ID),
			attribute.Int("photos", len(batch.PhotoRefs)),
		))
	defer span.End()

	start := time.Now()

	clusters, err := w.clusterer.Cluster(ctx, batch.PhotoRefs, batch.AssumeSingleItem)
	if err != nil {
		w.failBatch(ctx, batch.ID, err, start)
		return
	}
	span.SetAttributes(attribute.Int("clusters", len(clusters)))

	// Clustering is roughly half the work; the rest is draft generation.
	w.reportProgress(ctx, batch.ID, 50, 0)

	processed := 0
	for _, c := range clusters {
		draft, genErr := w.generator.Generate(ctx, batch.ID, c)
		if genErr != nil {
			// One bad cluster must not sink the batch: record an explicit
			// rejected placeholder and keep going.
			w.recordFailedCluster(ctx, batch.ID, c, genErr)
			processed++
			continue
		}

		if createErr := w.drafts.Create(ctx, draft); createErr != nil {
			w.failBatch(ctx, batch.ID, createErr, start)
			return
		}
		metrics.DraftGenerated(draft.PublishReady)

		processed++
		progress := 50 + (50*processed)/len(clusters)
		w.reportProgress(ctx, batch.ID, progress, processedPhotos(clusters, processed))
	}

	if err := w.batches.MarkCompleted(ctx, batch.ID, len(clusters)); err != nil {
		w.logger.Error("failed to mark batch completed",
			logger.String("batch_id", batch.ID),
			logger.Error(err))
		return
	}
	metrics.BatchProcessed(string(domain.JobStatusCompleted), time.Since(start), len(clusters))

	w.logger.Info("batch processed",
		logger.String("batch_id", batch.ID),
		logger.Int("photos", len(batch.PhotoRefs)),
		logger.Int("clusters", len(clusters)),
		logger.Duration("elapsed", time.Since(start)))
}

// recordFailedCluster persists an explicit low-confidence rejected draft so
// a failed analysis is visible rather than silently dropped.
func (w *BatchWorker) recordFailedCluster(ctx context.Context, batchID string, c domain.ItemCluster, genErr error) {
	w.logger.Warn("cluster analysis failed",
		logger.String("batch_id", batchID),
		logger.Int("cluster", c.Index),
		logger.Error(genErr))

	draft := domain.FailedClusterDraft(batchID, c)
	if err := w.drafts.Create(ctx, draft); err != nil {
		w.logger.Error("failed to record failed cluster",
			logger.String("batch_id", batchID),
			logger.Int("cluster", c.Index),
			logger.Error(err))
	}
	metrics.DraftGenerated(false)
}

func (w *BatchWorker) reportProgress(ctx context.Context, batchID string, progress, processedCount int) {
	if err := w.batches.UpdateProgress(ctx, batchID, progress, processedCount); err != nil &&
		!errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn("failed to update batch progress",
			logger.String("batch_id", batchID),
			logger.Error(err))
	}
}

func (w *BatchWorker) failBatch(ctx context.Context, batchID string, cause error, start time.Time) {
	w.logger.Error("batch processing failed",
		logger.String("batch_id", batchID),
		logger.Error(cause))

	if err := w.batches.MarkFailed(ctx, batchID, cause.Error()); err != nil {
		w.logger.Error("failed to mark batch failed",
			logger.String("batch_id", batchID),
			logger.Error(err))
	}
	metrics.BatchProcessed(string(domain.JobStatusFailed), time.Since(start), 0)
}

// processedPhotos sums the photos covered by the first n clusters.
func processedPhotos(clusters []domain.ItemCluster, n int) int {
	total := 0
	for i := 0; i < n && i < len(clusters); i++ {
		total += clusters[i].Size() + len(clusters[i].Labels)
	}
	return total
}

// runRecovery resets stale claimed batches back to pending. This handles
// batches whose worker crashed mid-processing.
func (w *BatchWorker) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reset, err := w.batches.ResetStale(ctx, w.staleJobAge)
			if err != nil {
				w.logger.Error("batch recovery failed", logger.Error(err))
			} else if reset > 0 {
				w.logger.Warn("recovered stale batches", logger.Int64("reset", reset))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
