package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/listforge/listforge/internal/database"
	"github.com/listforge/listforge/internal/domain"
)

func draftColumns() []string {
	return []string{
		"id", "batch_id", "cluster_index", "title", "description", "brand",
		"category", "size", "condition", "color", "photo_refs",
		"price_min", "price_target", "price_max", "hashtags", "confidence",
		"publish_ready", "missing_fields", "state", "revision",
		"listing_id", "listing_url", "created_at", "updated_at",
	}
}

func addDraftRow(rows *sqlmock.Rows, id string, revision int, now time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, "batch-1", 0, "Carhartt black hoodie size L", "Light wear.", "Carhartt",
		"hoodies", "L", "very good", "black", "{a.jpg,b.jpg}",
		24.0, 32.0, 41.5, `{"#hoodie","#carhartt","#black"}`, 0.81,
		true, "{}", "draft", revision,
		nil, nil, now, now,
	)
}

func TestDraftRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM drafts").
		WithArgs("draft-1").
		WillReturnRows(addDraftRow(sqlmock.NewRows(draftColumns()), "draft-1", 1, now))

	d, err := repo.GetByID(ctx, "draft-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.Price.Target != 32.0 {
		t.Errorf("Price.Target = %v, want 32.0", d.Price.Target)
	}
	if !d.Price.Ordered() {
		t.Errorf("price band not ordered: %+v", d.Price)
	}
	if d.Revision != 1 {
		t.Errorf("Revision = %d, want 1", d.Revision)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDraftRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM drafts").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDraftRepository_UpdateBumpsRevision(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()
	now := time.Now()

	title := "Updated title"
	mock.ExpectQuery("UPDATE drafts").
		WillReturnRows(addDraftRow(sqlmock.NewRows(draftColumns()), "draft-1", 2, now))

	d, err := repo.Update(ctx, "draft-1", database.DraftUpdate{Title: &title})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if d.Revision != 2 {
		t.Errorf("Revision = %d, want 2 after edit", d.Revision)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDraftRepository_UpdatePublishedDraftFails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()

	title := "too late"
	// Published drafts never match the WHERE clause.
	mock.ExpectQuery("UPDATE drafts").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(ctx, "draft-1", database.DraftUpdate{Title: &title})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound for published draft", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDraftRepository_MarkPublished(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "revision matches",
			setupMock: func() {
				mock.ExpectExec("UPDATE drafts").
					WithArgs("draft-1", 1, "listing-9", "https://example.test/items/9").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "stale revision rejected",
			setupMock: func() {
				mock.ExpectExec("UPDATE drafts").
					WithArgs("draft-1", 1, "listing-9", "https://example.test/items/9").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := repo.MarkPublished(ctx, "draft-1", 1, "listing-9", "https://example.test/items/9")
			if (err != nil) != tc.wantErr {
				t.Errorf("MarkPublished() error = %v, wantErr %v", err, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestDraftRepository_ListByBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()
	now := time.Now()

	rows := sqlmock.NewRows(draftColumns())
	addDraftRow(rows, "draft-1", 1, now)
	addDraftRow(rows, "draft-2", 1, now)
	mock.ExpectQuery("SELECT (.+) FROM drafts").
		WithArgs("batch-1").
		WillReturnRows(rows)

	drafts, err := repo.ListByBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ListByBatch() error = %v", err)
	}
	if len(drafts) != 2 {
		t.Errorf("ListByBatch() returned %d drafts, want 2", len(drafts))
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDraftRepository_MarkRejectedBumpsRevision(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE drafts\s+SET state = 'rejected', revision = revision \+ 1`).
		WithArgs("draft-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkRejected(ctx, "draft-1"); err != nil {
		t.Errorf("MarkRejected() error = %v", err)
	}

	// Already rejected or published rows never match the WHERE clause.
	mock.ExpectExec("UPDATE drafts").
		WithArgs("draft-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkRejected(ctx, "draft-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second MarkRejected() error = %v, want ErrNotFound", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDraftRepository_SetValidation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDraftRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE drafts").
		WithArgs("draft-1", false, pq.StringArray{"title", "price"}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result := domain.ValidationResult{Ready: false, MissingFields: []string{"title", "price"}}
	if err := repo.SetValidation(ctx, "draft-1", result); err != nil {
		t.Errorf("SetValidation() error = %v", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
