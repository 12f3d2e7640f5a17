package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/listforge/listforge/internal/domain"
)

// batchSelectList is the column list for SELECT/RETURNING on photo_batches
// (single source for schema changes)
const batchSelectList = `id, photo_refs, assume_single_item, status, progress,
			processed_count, cluster_count, failure_reason, created_at, updated_at`

// BatchRepository manages photo batch jobs in PostgreSQL.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository creates a new repository
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create registers a new batch job in the pending state and returns it.
// Batch size limits are enforced here so every entry point shares them.
func (r *BatchRepository) Create(ctx context.Context, photoRefs []string, assumeSingleItem bool) (*domain.PhotoBatch, error) {
	if len(photoRefs) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if len(photoRefs) > domain.MaxBatchPhotos {
		return nil, domain.ErrBatchTooLarge
	}

	batch := &domain.PhotoBatch{
		ID:               uuid.NewString(),
		PhotoRefs:        photoRefs,
		AssumeSingleItem: assumeSingleItem,
		Status:           domain.JobStatusPending,
	}

	query := `
		INSERT INTO photo_batches (id, photo_refs, assume_single_item, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + batchSelectList

	err := r.db.QueryRowxContext(ctx, query,
		batch.ID, pq.StringArray(batch.PhotoRefs), batch.AssumeSingleItem, batch.Status,
	).StructScan(batch)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	return batch, nil
}

// GetByID retrieves a batch job by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.PhotoBatch, error) {
	batch := &domain.PhotoBatch{}
	query := `SELECT ` + batchSelectList + ` FROM photo_batches WHERE id = $1`

	err := r.db.GetContext(ctx, batch, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	return batch, nil
}

// ClaimPending atomically claims up to limit pending batches for processing.
// Uses FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (r *BatchRepository) ClaimPending(ctx context.Context, limit int) ([]domain.PhotoBatch, error) {
	query := `
		UPDATE photo_batches
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM photo_batches
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + batchSelectList

	var batches []domain.PhotoBatch
	if err := r.db.SelectContext(ctx, &batches, query, limit); err != nil {
		return nil, fmt.Errorf("claim pending batches: %w", err)
	}
	return batches, nil
}

// UpdateProgress records processing progress for a running batch. GREATEST
// keeps the reported progress monotonically non-decreasing even when
// updates land out of order.
func (r *BatchRepository) UpdateProgress(ctx context.Context, id string, progress, processedCount int) error {
	query := `
		UPDATE photo_batches
		SET progress = GREATEST(progress, $2),
		    processed_count = GREATEST(processed_count, $3),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	if err := r.execExpectOneRow(ctx, query, id, progress, processedCount); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update batch progress: %w", err)
	}
	return nil
}

// MarkCompleted marks a batch as completed with its final cluster count.
func (r *BatchRepository) MarkCompleted(ctx context.Context, id string, clusterCount int) error {
	query := `
		UPDATE photo_batches
		SET status = 'completed',
		    progress = 100,
		    processed_count = array_length(photo_refs, 1),
		    cluster_count = $2,
		    updated_at = NOW()
		WHERE id = $1`

	if err := r.execExpectOneRow(ctx, query, id, clusterCount); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark batch completed: %w", err)
	}
	return nil
}

// MarkFailed marks a batch as failed with a reason the caller can read back.
func (r *BatchRepository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE photo_batches
		SET status = 'failed',
		    failure_reason = $2,
		    updated_at = NOW()
		WHERE id = $1`

	if err := r.execExpectOneRow(ctx, query, id, reason); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark batch failed: %w", err)
	}
	return nil
}

// ResetStale resets batches stuck in "processing" back to "pending".
// This handles batches that were claimed but whose worker crashed before
// completing.
func (r *BatchRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE photo_batches
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing'
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale batches: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns batch counts by status plus the average time from
// submission to completion over the last hour.
func (r *BatchRepository) Stats(ctx context.Context) (*domain.BatchStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'processing') as processing,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - created_at)))
				FILTER (WHERE status = 'completed' AND updated_at > NOW() - INTERVAL '1 hour'), 0) as avg_processing_seconds
		FROM photo_batches`

	var stats domain.BatchStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Completed,
		&stats.Failed,
		&stats.AvgProcessingSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("get batch stats: %w", err)
	}
	return &stats, nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected
func (r *BatchRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
