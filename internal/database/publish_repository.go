package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/listforge/listforge/internal/domain"
)

const idempotencySelectList = `idempotency_key, draft_id, confirm_token, status, created_at, completed_at`

const publishLogSelectList = `id, draft_id, idempotency_key, outcome, listing_id,
			listing_url, error_detail, dry_run, created_at`

// PublishRepository manages idempotency records and the publish log in
// PostgreSQL. The idempotency table's primary key is the reservation
// mechanism: the row is written before any external side effect.
type PublishRepository struct {
	db *sqlx.DB
}

// NewPublishRepository creates a new repository
func NewPublishRepository(db *sqlx.DB) *PublishRepository {
	return &PublishRepository{db: db}
}

// Reserve claims an idempotency key for a publish attempt before the
// attempt touches the marketplace. When the key is already held, the
// existing record is returned together with reserved=false so the caller
// can distinguish a duplicate from a retryable failure.
func (r *PublishRepository) Reserve(ctx context.Context, key, draftID, confirmToken string) (*domain.IdempotencyRecord, bool, error) {
	insert := `
		INSERT INTO publish_idempotency (idempotency_key, draft_id, confirm_token, status, created_at)
		VALUES ($1, $2, $3, 'reserved', NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + idempotencySelectList

	rec := &domain.IdempotencyRecord{}
	err := r.db.GetContext(ctx, rec, insert, key, draftID, confirmToken)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	// Key already held; surface the prior attempt.
	existing, err := r.GetReservation(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetReservation retrieves an idempotency record by key
func (r *PublishRepository) GetReservation(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{}
	query := `SELECT ` + idempotencySelectList + ` FROM publish_idempotency WHERE idempotency_key = $1`

	err := r.db.GetContext(ctx, rec, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// CompleteReservation marks a reserved key as completed. A completed key
// can never be re-reserved.
func (r *PublishRepository) CompleteReservation(ctx context.Context, key string) error {
	query := `
		UPDATE publish_idempotency
		SET status = 'completed', completed_at = NOW()
		WHERE idempotency_key = $1 AND status = 'reserved'`

	if err := r.execExpectOneRow(ctx, query, key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("complete reservation: %w", err)
	}
	return nil
}

// ReleaseReservation marks a reserved key as failed, which frees the key
// for a retry of the same attempt.
func (r *PublishRepository) ReleaseReservation(ctx context.Context, key string) error {
	query := `
		UPDATE publish_idempotency
		SET status = 'failed', completed_at = NOW()
		WHERE idempotency_key = $1 AND status = 'reserved'`

	if err := r.execExpectOneRow(ctx, query, key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// RetryReservation re-arms a failed key for another attempt. Completed and
// still-reserved keys are left alone; the caller treats those as duplicates.
func (r *PublishRepository) RetryReservation(ctx context.Context, key, confirmToken string) (bool, error) {
	query := `
		UPDATE publish_idempotency
		SET status = 'reserved', confirm_token = $2, created_at = NOW(), completed_at = NULL
		WHERE idempotency_key = $1 AND status = 'failed'`

	result, err := r.db.ExecContext(ctx, query, key, confirmToken)
	if err != nil {
		return false, fmt.Errorf("retry reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return rows > 0, nil
}

// AppendLog records the outcome of one publish attempt.
func (r *PublishRepository) AppendLog(ctx context.Context, e *domain.PublishLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `
		INSERT INTO publish_log (id, draft_id, idempotency_key, outcome, listing_id,
			listing_url, error_detail, dry_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.DraftID, e.IdempotencyKey, e.Outcome, e.ListingID,
		e.ListingURL, e.ErrorDetail, e.DryRun,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append publish log: %w", err)
	}
	return nil
}

// ListLog returns publish attempts for a draft, newest first. An empty
// draftID returns attempts across all drafts.
func (r *PublishRepository) ListLog(ctx context.Context, draftID string, limit int) ([]domain.PublishLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + publishLogSelectList + `
		FROM publish_log
		WHERE ($1 = '' OR draft_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	var entries []domain.PublishLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, draftID, limit); err != nil {
		return nil, fmt.Errorf("list publish log: %w", err)
	}
	return entries, nil
}

// Stats returns publish attempt counts by outcome.
func (r *PublishRepository) Stats(ctx context.Context) (*domain.PublishStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'success') as success,
			COUNT(*) FILTER (WHERE outcome = 'failed') as failed,
			COUNT(*) FILTER (WHERE outcome = 'duplicate') as duplicate,
			COUNT(*) FILTER (WHERE outcome = 'verification_required') as verification_required,
			COUNT(*) FILTER (WHERE outcome = 'timeout') as timeout,
			COUNT(*) FILTER (WHERE dry_run) as dry_run
		FROM publish_log`

	var stats domain.PublishStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Success,
		&stats.Failed,
		&stats.Duplicate,
		&stats.VerificationRequired,
		&stats.Timeout,
		&stats.DryRun,
	)
	if err != nil {
		return nil, fmt.Errorf("get publish stats: %w", err)
	}
	return &stats, nil
}

func (r *PublishRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
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
