package domain

import "time"

// PublishTokenTTL bounds the window between a successful prepare and the
// actual publish. A token past this age must be re-prepared.
const PublishTokenTTL = 30 * time.Minute

// PublishToken is an opaque short-lived credential proving a draft passed
// validation at prepare time. It is bound to one draft and the draft's
// revision at that moment; editing the draft invalidates the token.
type PublishToken struct {
	Token     string    `json:"token"`
	DraftID   string    `json:"draft_id"`
	Revision  int       `json:"revision"`
	DryRun    bool      `json:"dry_run"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdempotencyStatus tracks whether a reserved idempotency key corresponds
// to a completed attempt, a failed one, or an attempt still in flight.
type IdempotencyStatus string

const (
	IdempotencyReserved  IdempotencyStatus = "reserved"
	IdempotencyCompleted IdempotencyStatus = "completed"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// IdempotencyRecord reserves a caller-supplied idempotency key before any
// external side effect. The UNIQUE constraint on Key is the
// duplicate-suppression mechanism: a failed attempt may be retried with the
// same key, a completed or in-flight one may not.
type IdempotencyRecord struct {
	Key          string            `db:"idempotency_key" json:"idempotency_key"`
	DraftID      string            `db:"draft_id"        json:"draft_id"`
	ConfirmToken string            `db:"confirm_token"   json:"confirm_token"`
	Status       IdempotencyStatus `db:"status"          json:"status"`
	CreatedAt    time.Time         `db:"created_at"      json:"created_at"`
	CompletedAt  *time.Time        `db:"completed_at"    json:"completed_at,omitempty"`
}

// PublishOutcome is the terminal status of one publish attempt.
type PublishOutcome string

const (
	PublishSuccess              PublishOutcome = "success"
	PublishFailed               PublishOutcome = "failed"
	PublishDuplicate            PublishOutcome = "duplicate"
	PublishVerificationRequired PublishOutcome = "verification_required"
	PublishTimeout              PublishOutcome = "timeout"
)

// PublishLogEntry records the outcome of a publish attempt. Every attempt
// that reaches the automation layer produces exactly one entry.
type PublishLogEntry struct {
	ID             string         `db:"id"              json:"id"`
	DraftID        string         `db:"draft_id"        json:"draft_id"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key"`
	Outcome        PublishOutcome `db:"outcome"         json:"outcome"`
	ListingID      *string        `db:"listing_id"      json:"listing_id,omitempty"`
	ListingURL     *string        `db:"listing_url"     json:"listing_url,omitempty"`
	ErrorDetail    *string        `db:"error_detail"    json:"error_detail,omitempty"`
	DryRun         bool           `db:"dry_run"         json:"dry_run"`
	CreatedAt      time.Time      `db:"created_at"      json:"created_at"`
}

// PublishResult is returned to the caller on a successful publish.
type PublishResult struct {
	ListingID  string `json:"listing_id"`
	ListingURL string `json:"listing_url"`
	DryRun     bool   `json:"dry_run"`
}
