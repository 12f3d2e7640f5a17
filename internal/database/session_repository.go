package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/listforge/listforge/internal/domain"
)

const sessionSelectList = `id, ciphertext, user_agent, locale, timezone,
			viewport_w, viewport_h, state, last_validated_at, created_at, updated_at`

// SessionRepository stores the encrypted marketplace session. The service
// holds exactly one credential set per deployment, so the table is keyed by
// a fixed row ID.
type SessionRepository struct {
	db *sqlx.DB
}

// sessionRowID pins the single-session table to one row.
const sessionRowID = "current"

// NewSessionRepository creates a new repository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save upserts the encrypted session blob together with the client
// identity generated for it. Saving a new session replaces the old one.
func (r *SessionRepository) Save(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO marketplace_sessions (id, ciphertext, user_agent, locale, timezone,
			viewport_w, viewport_h, state, last_validated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			user_agent = EXCLUDED.user_agent,
			locale = EXCLUDED.locale,
			timezone = EXCLUDED.timezone,
			viewport_w = EXCLUDED.viewport_w,
			viewport_h = EXCLUDED.viewport_h,
			state = EXCLUDED.state,
			last_validated_at = EXCLUDED.last_validated_at,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	s.ID = sessionRowID
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.Ciphertext, s.Identity.UserAgent, s.Identity.Locale, s.Identity.Timezone,
		s.Identity.ViewportW, s.Identity.ViewportH, s.State, s.LastValidatedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get retrieves the stored session. domain.ErrNotFound means no session
// has ever been saved.
func (r *SessionRepository) Get(ctx context.Context) (*domain.Session, error) {
	query := `SELECT ` + sessionSelectList + ` FROM marketplace_sessions WHERE id = $1`

	var s domain.Session
	err := r.db.QueryRowContext(ctx, query, sessionRowID).Scan(
		&s.ID, &s.Ciphertext, &s.Identity.UserAgent, &s.Identity.Locale, &s.Identity.Timezone,
		&s.Identity.ViewportW, &s.Identity.ViewportH, &s.State, &s.LastValidatedAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// SetState transitions the stored session between valid and expired.
func (r *SessionRepository) SetState(ctx context.Context, state domain.SessionState) error {
	query := `
		UPDATE marketplace_sessions
		SET state = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, sessionRowID, state)
	if err != nil {
		return fmt.Errorf("set session state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TouchValidated records a successful liveness check against the session.
func (r *SessionRepository) TouchValidated(ctx context.Context) error {
	query := `
		UPDATE marketplace_sessions
		SET last_validated_at = NOW(), state = 'valid', updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, sessionRowID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the stored session entirely.
func (r *SessionRepository) Delete(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM marketplace_sessions WHERE id = $1`, sessionRowID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
