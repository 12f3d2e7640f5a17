package api

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

// BackoffReporter reports the current publish pacing backoff multiplier.
type BackoffReporter interface {
	Multiplier() int
}

// StatsOverview is the aggregate snapshot served by the stats endpoint.
type StatsOverview struct {
	domain.Stats
	BackoffMultiplier int `json:"backoff_multiplier"`
}

// StatsService aggregates per-store statistics for the overview endpoint
type StatsService struct {
	batches    BatchStore
	drafts     DraftStore
	publishLog PublishLogStore
	backoff    BackoffReporter
	logger     logger.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(
	batches BatchStore,
	drafts DraftStore,
	publishLog PublishLogStore,
	backoff BackoffReporter,
	log logger.Logger,
) *StatsService {
	return &StatsService{
		batches:    batches,
		drafts:     drafts,
		publishLog: publishLog,
		backoff:    backoff,
		logger:     log,
	}
}

// GetStats collects the batch, draft and publish statistics concurrently.
func (s *StatsService) GetStats(ctx context.Context) (*StatsOverview, error) {
	overview := &StatsOverview{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.batches.Stats(gctx)
		if err != nil {
			return err
		}
		overview.Batches = *stats
		return nil
	})
	g.Go(func() error {
		stats, err := s.drafts.Stats(gctx)
		if err != nil {
			return err
		}
		overview.Drafts = *stats
		return nil
	})
	g.Go(func() error {
		stats, err := s.publishLog.Stats(gctx)
		if err != nil {
			return err
		}
		overview.Publish = *stats
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.backoff != nil {
		overview.BackoffMultiplier = s.backoff.Multiplier()
	}
	return overview, nil
}
