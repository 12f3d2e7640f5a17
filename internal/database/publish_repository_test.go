package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/listforge/listforge/internal/database"
	"github.com/listforge/listforge/internal/domain"
)

func idempotencyColumns() []string {
	return []string{"idempotency_key", "draft_id", "confirm_token", "status", "created_at", "completed_at"}
}

func TestPublishRepository_Reserve(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("fresh key is reserved", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := database.NewPublishRepository(db)

		mock.ExpectQuery("INSERT INTO publish_idempotency").
			WithArgs("key-1", "draft-1", "tok-1").
			WillReturnRows(sqlmock.NewRows(idempotencyColumns()).
				AddRow("key-1", "draft-1", "tok-1", "reserved", now, nil))

		rec, reserved, err := repo.Reserve(ctx, "key-1", "draft-1", "tok-1")
		if err != nil {
			t.Fatalf("Reserve() error = %v", err)
		}
		if !reserved {
			t.Error("Reserve() reserved = false, want true")
		}
		if rec.Status != domain.IdempotencyReserved {
			t.Errorf("Status = %v, want reserved", rec.Status)
		}

		if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
			t.Errorf("unfulfilled expectations: %v", expectErr)
		}
	})

	t.Run("held key surfaces prior attempt", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := database.NewPublishRepository(db)
		completedAt := now.Add(time.Minute)

		// ON CONFLICT DO NOTHING returns no rows when the key exists.
		mock.ExpectQuery("INSERT INTO publish_idempotency").
			WithArgs("key-1", "draft-1", "tok-2").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT (.+) FROM publish_idempotency").
			WithArgs("key-1").
			WillReturnRows(sqlmock.NewRows(idempotencyColumns()).
				AddRow("key-1", "draft-1", "tok-1", "completed", now, completedAt))

		rec, reserved, err := repo.Reserve(ctx, "key-1", "draft-1", "tok-2")
		if err != nil {
			t.Fatalf("Reserve() error = %v", err)
		}
		if reserved {
			t.Error("Reserve() reserved = true, want false for duplicate key")
		}
		if rec.Status != domain.IdempotencyCompleted {
			t.Errorf("Status = %v, want completed", rec.Status)
		}
		if rec.ConfirmToken != "tok-1" {
			t.Errorf("ConfirmToken = %q, want original token", rec.ConfirmToken)
		}

		if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
			t.Errorf("unfulfilled expectations: %v", expectErr)
		}
	})
}

func TestPublishRepository_CompleteReservation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPublishRepository(db)
	ctx := context.Background()

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "completes a reserved key",
			setupMock: func() {
				mock.ExpectExec("UPDATE publish_idempotency").
					WithArgs("key-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "key not reserved returns error",
			setupMock: func() {
				mock.ExpectExec("UPDATE publish_idempotency").
					WithArgs("key-1").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := repo.CompleteReservation(ctx, "key-1")
			if (err != nil) != tc.wantErr {
				t.Errorf("CompleteReservation() error = %v, wantErr %v", err, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestPublishRepository_RetryReservation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPublishRepository(db)
	ctx := context.Background()

	// Only failed keys may be re-armed.
	mock.ExpectExec("UPDATE publish_idempotency").
		WithArgs("key-1", "tok-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.RetryReservation(ctx, "key-1", "tok-2")
	if err != nil {
		t.Fatalf("RetryReservation() error = %v", err)
	}
	if !ok {
		t.Error("RetryReservation() = false, want true for failed key")
	}

	mock.ExpectExec("UPDATE publish_idempotency").
		WithArgs("key-2", "tok-3").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.RetryReservation(ctx, "key-2", "tok-3")
	if err != nil {
		t.Fatalf("RetryReservation() error = %v", err)
	}
	if ok {
		t.Error("RetryReservation() = true, want false for completed key")
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestPublishRepository_AppendLog(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPublishRepository(db)
	ctx := context.Background()
	now := time.Now()

	listingID := "listing-9"
	entry := &domain.PublishLogEntry{
		DraftID:        "draft-1",
		IdempotencyKey: "key-1",
		Outcome:        domain.PublishSuccess,
		ListingID:      &listingID,
	}

	mock.ExpectQuery("INSERT INTO publish_log").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	if err := repo.AppendLog(ctx, entry); err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("AppendLog() left ID empty, want generated UUID")
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestPublishRepository_ListLog(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPublishRepository(db)
	ctx := context.Background()
	now := time.Now()

	cols := []string{
		"id", "draft_id", "idempotency_key", "outcome", "listing_id",
		"listing_url", "error_detail", "dry_run", "created_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM publish_log").
		WithArgs("draft-1", 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("log-1", "draft-1", "key-1", "success", "listing-9", "https://example.test/items/9", nil, false, now).
			AddRow("log-2", "draft-1", "key-0", "failed", nil, nil, "session expired", false, now.Add(-time.Hour)))

	entries, err := repo.ListLog(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("ListLog() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListLog() returned %d entries, want 2", len(entries))
	}
	if entries[0].Outcome != domain.PublishSuccess {
		t.Errorf("Outcome = %v, want success", entries[0].Outcome)
	}
	if entries[1].ErrorDetail == nil || *entries[1].ErrorDetail != "session expired" {
		t.Errorf("ErrorDetail = %v, want session expired", entries[1].ErrorDetail)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestPublishRepository_GetReservationNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPublishRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM publish_idempotency").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetReservation(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetReservation() error = %v, want ErrNotFound", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
