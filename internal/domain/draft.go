// Package domain contains the core domain models for the listforge service.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DraftState represents the lifecycle state of a draft listing.
type DraftState string

const (
	DraftStateDraft     DraftState = "draft"
	DraftStatePublished DraftState = "published"
	DraftStateRejected  DraftState = "rejected"
)

// PriceRange is the suggested price band for a draft.
// Invariant: Min <= Target <= Max.
type PriceRange struct {
	Min    float64 `db:"price_min"    json:"min"`
	Target float64 `db:"price_target" json:"target"`
	Max    float64 `db:"price_max"    json:"max"`
}

// Ordered reports whether the range satisfies Min <= Target <= Max.
func (p PriceRange) Ordered() bool {
	return p.Min > 0 && p.Min <= p.Target && p.Target <= p.Max
}

// Draft represents a not-yet-published candidate listing.
type Draft struct {
	ID            string         `db:"id"             json:"id"`
	BatchID       string         `db:"batch_id"       json:"batch_id"`
	ClusterIndex  int            `db:"cluster_index"  json:"cluster_index"`
	Title         string         `db:"title"          json:"title"`
	Description   string         `db:"description"    json:"description"`
	Brand         string         `db:"brand"          json:"brand"`
	Category      string         `db:"category"       json:"category"`
	Size          string         `db:"size"           json:"size"`
	Condition     string         `db:"condition"      json:"condition"`
	Color         string         `db:"color"          json:"color"`
	PhotoRefs     pq.StringArray `db:"photo_refs"     json:"photo_refs"`
	Price         PriceRange     `json:"price"`
	Hashtags      pq.StringArray `db:"hashtags"       json:"hashtags"`
	Confidence    float64        `db:"confidence"     json:"confidence"`
	PublishReady  bool           `db:"publish_ready"  json:"publish_ready"`
	MissingFields pq.StringArray `db:"missing_fields" json:"missing_fields"`
	State         DraftState     `db:"state"          json:"state"`
	Revision      int            `db:"revision"       json:"revision"`
	ListingID     *string        `db:"listing_id"     json:"listing_id,omitempty"`
	ListingURL    *string        `db:"listing_url"    json:"listing_url,omitempty"`
	CreatedAt     time.Time      `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"     json:"updated_at"`
}

// FailedClusterDraft builds the placeholder persisted when a cluster's
// analysis fails outright. It is never publish-ready; the failure is
// surfaced instead of the cluster being silently dropped.
func FailedClusterDraft(batchID string, c ItemCluster) *Draft {
	refs := append([]string{}, c.PhotoRefs...)
	for _, l := range c.Labels {
		refs = append(refs, l.Ref)
	}
	return &Draft{
		ID:            uuid.NewString(),
		BatchID:       batchID,
		ClusterIndex:  c.Index,
		PhotoRefs:     refs,
		Confidence:    0,
		PublishReady:  false,
		MissingFields: []string{"analysis"},
		State:         DraftStateRejected,
		Revision:      1,
	}
}

// ValidationResult is the outcome of running the validation gate on a draft.
// Ready is true only when every content policy rule passed; otherwise
// MissingFields names each failed rule.
type ValidationResult struct {
	Ready         bool     `json:"ready"`
	MissingFields []string `json:"missing_fields,omitempty"`
}
