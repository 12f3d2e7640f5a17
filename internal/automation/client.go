// Package automation drives listing actions against the marketplace
// through its web surface, presenting a consistent browser identity and
// human-shaped pacing for each stored session.
package automation

import (
	"context"

	"github.com/listforge/listforge/internal/domain"
)

// Outcome is the result of one marketplace action.
type Outcome struct {
	Status      domain.PublishOutcome
	ListingID   string
	ListingURL  string
	ErrorDetail string
}

// Client is the marketplace automation surface. Implementations must map
// session problems to domain.ErrSessionInvalid, human-verification walls to
// domain.ErrVerificationRequired and network timeouts to
// domain.ErrExternalTimeout so the publish protocol can classify outcomes.
type Client interface {
	// PublishListing creates a listing from the draft and returns the
	// marketplace listing ID and URL.
	PublishListing(ctx context.Context, creds []byte, identity domain.ClientIdentity, draft *domain.Draft) (*Outcome, error)

	// CheckSession verifies the stored session is still authenticated
	// without performing any visible action.
	CheckSession(ctx context.Context, creds []byte, identity domain.ClientIdentity) error

	// DelistListing removes a live listing, used before re-listing stale
	// inventory.
	DelistListing(ctx context.Context, creds []byte, identity domain.ClientIdentity, listingID string) error
}
