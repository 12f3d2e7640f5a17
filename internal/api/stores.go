package api

import (
	"context"

	"github.com/awnumar/memguard"

	"github.com/listforge/listforge/internal/automation"
	"github.com/listforge/listforge/internal/database"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/publish"
	"github.com/listforge/listforge/internal/vault"
)

// BatchStore is the batch persistence surface the API needs.
type BatchStore interface {
	Create(ctx context.Context, photoRefs []string, assumeSingleItem bool) (*domain.PhotoBatch, error)
	GetByID(ctx context.Context, id string) (*domain.PhotoBatch, error)
	Stats(ctx context.Context) (*domain.BatchStats, error)
}

// DraftStore is the draft persistence surface the API needs.
type DraftStore interface {
	GetByID(ctx context.Context, id string) (*domain.Draft, error)
	ListByBatch(ctx context.Context, batchID string) ([]domain.Draft, error)
	List(ctx context.Context, f database.DraftFilter) ([]domain.Draft, error)
	Update(ctx context.Context, id string, u database.DraftUpdate) (*domain.Draft, error)
	SetValidation(ctx context.Context, id string, result domain.ValidationResult) error
	MarkRejected(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.DraftStats, error)
}

// Publisher drives the two-phase publish protocol.
type Publisher interface {
	Prepare(ctx context.Context, draftID string, dryRun bool) (*domain.PublishToken, *domain.ValidationResult, error)
	Publish(ctx context.Context, tokenValue, idempotencyKey string, dryRun bool) (*domain.PublishResult, error)
	Cancel(ctx context.Context, tokenValue string) error
}

// PublishLogStore reads the publish attempt audit trail.
type PublishLogStore interface {
	ListLog(ctx context.Context, draftID string, limit int) ([]domain.PublishLogEntry, error)
	Stats(ctx context.Context) (*domain.PublishStats, error)
}

// SessionVault manages the encrypted marketplace session.
type SessionVault interface {
	SaveSession(ctx context.Context, credentials []byte) (*domain.Session, error)
	OpenSession(ctx context.Context) (*memguard.LockedBuffer, *domain.Session, error)
	Status(ctx context.Context) (domain.SessionState, *domain.ClientIdentity, error)
	MarkValidated(ctx context.Context) error
	Invalidate(ctx context.Context) error
	DeleteSession(ctx context.Context) error
}

// SessionChecker probes the marketplace for session liveness.
type SessionChecker interface {
	CheckSession(ctx context.Context, creds []byte, identity domain.ClientIdentity) error
}

var (
	_ BatchStore      = (*database.BatchRepository)(nil)
	_ DraftStore      = (*database.DraftRepository)(nil)
	_ Publisher       = (*publish.Service)(nil)
	_ PublishLogStore = (*database.PublishRepository)(nil)
	_ SessionVault    = (*vault.Vault)(nil)
	_ SessionChecker  = (*automation.MarketplaceClient)(nil)
)
