package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/listforge/listforge/internal/domain"
)

// draftSelectList is the column list for SELECT/RETURNING on drafts
// (single source for schema changes)
const draftSelectList = `id, batch_id, cluster_index, title, description, brand,
			category, size, condition, color, photo_refs,
			price_min, price_target, price_max, hashtags, confidence,
			publish_ready, missing_fields, state, revision,
			listing_id, listing_url, created_at, updated_at`

// DraftRepository manages draft listings in PostgreSQL.
type DraftRepository struct {
	db *sqlx.DB
}

// NewDraftRepository creates a new repository
func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Create persists a freshly generated draft.
func (r *DraftRepository) Create(ctx context.Context, d *domain.Draft) error {
	query := `
		INSERT INTO drafts (id, batch_id, cluster_index, title, description, brand,
			category, size, condition, color, photo_refs,
			price_min, price_target, price_max, hashtags, confidence,
			publish_ready, missing_fields, state, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		d.ID, d.BatchID, d.ClusterIndex, d.Title, d.Description, d.Brand,
		d.Category, d.Size, d.Condition, d.Color, d.PhotoRefs,
		d.Price.Min, d.Price.Target, d.Price.Max, d.Hashtags, d.Confidence,
		d.PublishReady, d.MissingFields, d.State, d.Revision,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

// GetByID retrieves a draft by ID
func (r *DraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	query := `SELECT ` + draftSelectList + ` FROM drafts WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return d, nil
}

// ListByBatch returns all drafts generated from one batch, in cluster order.
func (r *DraftRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.Draft, error) {
	query := `SELECT ` + draftSelectList + `
		FROM drafts
		WHERE batch_id = $1
		ORDER BY cluster_index ASC`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list drafts by batch: %w", err)
	}
	defer rows.Close()

	return scanDrafts(rows)
}

// DraftFilter narrows List results. Zero values mean "no filter".
type DraftFilter struct {
	State        domain.DraftState
	PublishReady *bool
	Limit        int
	Offset       int
}

// List returns drafts matching the filter, newest first.
func (r *DraftRepository) List(ctx context.Context, f DraftFilter) ([]domain.Draft, error) {
	query := `SELECT ` + draftSelectList + `
		FROM drafts
		WHERE ($1 = '' OR state = $1)
		  AND ($2::boolean IS NULL OR publish_ready = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, query, string(f.State), f.PublishReady, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	return scanDrafts(rows)
}

// DraftUpdate carries the caller-editable fields of a draft. Nil fields are
// left untouched.
type DraftUpdate struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	Brand       *string            `json:"brand,omitempty"`
	Category    *string            `json:"category,omitempty"`
	Size        *string            `json:"size,omitempty"`
	Condition   *string            `json:"condition,omitempty"`
	Color       *string            `json:"color,omitempty"`
	Price       *domain.PriceRange `json:"price,omitempty"`
	Hashtags    *[]string          `json:"hashtags,omitempty"`
}

// Update applies an edit to a draft and bumps its revision, which
// invalidates any publish token prepared against the previous revision.
// Published drafts are immutable.
func (r *DraftRepository) Update(ctx context.Context, id string, u DraftUpdate) (*domain.Draft, error) {
	query := `
		UPDATE drafts
		SET title       = COALESCE($2, title),
		    description = COALESCE($3, description),
		    brand       = COALESCE($4, brand),
		    category    = COALESCE($5, category),
		    size        = COALESCE($6, size),
		    condition   = COALESCE($7, condition),
		    color       = COALESCE($8, color),
		    price_min    = COALESCE($9, price_min),
		    price_target = COALESCE($10, price_target),
		    price_max    = COALESCE($11, price_max),
		    hashtags    = COALESCE($12, hashtags),
		    revision    = revision + 1,
		    updated_at  = NOW()
		WHERE id = $1 AND state = 'draft'
		RETURNING ` + draftSelectList

	var priceMin, priceTarget, priceMax *float64
	if u.Price != nil {
		priceMin, priceTarget, priceMax = &u.Price.Min, &u.Price.Target, &u.Price.Max
	}
	var hashtags *pq.StringArray
	if u.Hashtags != nil {
		arr := pq.StringArray(*u.Hashtags)
		hashtags = &arr
	}

	row := r.db.QueryRowContext(ctx, query, id,
		u.Title, u.Description, u.Brand, u.Category, u.Size, u.Condition, u.Color,
		priceMin, priceTarget, priceMax, hashtags,
	)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update draft: %w", err)
	}
	return d, nil
}

// SetValidation stores a fresh validation verdict for a draft.
func (r *DraftRepository) SetValidation(ctx context.Context, id string, result domain.ValidationResult) error {
	query := `
		UPDATE drafts
		SET publish_ready = $2, missing_fields = $3, updated_at = NOW()
		WHERE id = $1`

	if err := r.execExpectOneRow(ctx, query, id, result.Ready, pq.StringArray(result.MissingFields)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("set draft validation: %w", err)
	}
	return nil
}

// MarkPublished transitions a draft to the published state, recording the
// marketplace listing it became. The revision guard rejects the transition
// when the draft was edited after the publish was prepared.
func (r *DraftRepository) MarkPublished(ctx context.Context, id string, revision int, listingID, listingURL string) error {
	query := `
		UPDATE drafts
		SET state = 'published',
		    listing_id = $3,
		    listing_url = $4,
		    updated_at = NOW()
		WHERE id = $1 AND revision = $2 AND state = 'draft'`

	if err := r.execExpectOneRow(ctx, query, id, revision, listingID, listingURL); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark draft published: %w", err)
	}
	return nil
}

// UpdateListing records the marketplace listing a published draft now
// points at, used when stale inventory is re-listed under a new ID.
func (r *DraftRepository) UpdateListing(ctx context.Context, id, listingID, listingURL string) error {
	query := `
		UPDATE drafts
		SET listing_id = $2, listing_url = $3, updated_at = NOW()
		WHERE id = $1 AND state = 'published'`

	if err := r.execExpectOneRow(ctx, query, id, listingID, listingURL); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update draft listing: %w", err)
	}
	return nil
}

// MarkRejected transitions a draft to the rejected state. The revision
// bump invalidates any publish token prepared before the rejection.
func (r *DraftRepository) MarkRejected(ctx context.Context, id string) error {
	query := `
		UPDATE drafts
		SET state = 'rejected', revision = revision + 1, updated_at = NOW()
		WHERE id = $1 AND state = 'draft'`

	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark draft rejected: %w", err)
	}
	return nil
}

// ListPublishedBefore returns published drafts whose listing is older than
// the cutoff, used by the relist scheduler.
func (r *DraftRepository) ListPublishedBefore(ctx context.Context, cutoff string, limit int) ([]domain.Draft, error) {
	query := `SELECT ` + draftSelectList + `
		FROM drafts
		WHERE state = 'published'
		  AND updated_at < NOW() - $1::interval
		ORDER BY updated_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list published drafts: %w", err)
	}
	defer rows.Close()

	return scanDrafts(rows)
}

// Stats returns draft counts by state and readiness.
func (r *DraftRepository) Stats(ctx context.Context) (*domain.DraftStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE state = 'draft') as draft,
			COUNT(*) FILTER (WHERE state = 'published') as published,
			COUNT(*) FILTER (WHERE state = 'rejected') as rejected,
			COUNT(*) FILTER (WHERE state = 'draft' AND publish_ready) as publish_ready,
			COUNT(*) FILTER (WHERE state = 'draft' AND NOT publish_ready) as needing_review
		FROM drafts`

	var stats domain.DraftStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Draft,
		&stats.Published,
		&stats.Rejected,
		&stats.PublishReady,
		&stats.NeedingReview,
	)
	if err != nil {
		return nil, fmt.Errorf("get draft stats: %w", err)
	}
	return &stats, nil
}

func (r *DraftRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
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

// rowScanner lets scanDraft serve both QueryRow and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*domain.Draft, error) {
	var d domain.Draft
	err := row.Scan(
		&d.ID, &d.BatchID, &d.ClusterIndex, &d.Title, &d.Description, &d.Brand,
		&d.Category, &d.Size, &d.Condition, &d.Color, &d.PhotoRefs,
		&d.Price.Min, &d.Price.Target, &d.Price.Max, &d.Hashtags, &d.Confidence,
		&d.PublishReady, &d.MissingFields, &d.State, &d.Revision,
		&d.ListingID, &d.ListingURL, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDrafts(rows *sql.Rows) ([]domain.Draft, error) {
	drafts := make([]domain.Draft, 0)
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, *d)
	}
	return drafts, rows.Err()
}
