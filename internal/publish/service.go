package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/listforge/listforge/internal/automation"
	"github.com/listforge/listforge/internal/database"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/metrics"
	"github.com/listforge/listforge/internal/ratelimit"
	"github.com/listforge/listforge/internal/validation"
	"github.com/listforge/listforge/internal/vault"
)

// DraftStore is the draft persistence surface the protocol needs.
type DraftStore interface {
	GetByID(ctx context.Context, id string) (*domain.Draft, error)
	MarkPublished(ctx context.Context, id string, revision int, listingID, listingURL string) error
	SetValidation(ctx context.Context, id string, result domain.ValidationResult) error
}

// AttemptStore is the idempotency and publish-log surface.
type AttemptStore interface {
	Reserve(ctx context.Context, key, draftID, confirmToken string) (*domain.IdempotencyRecord, bool, error)
	RetryReservation(ctx context.Context, key, confirmToken string) (bool, error)
	CompleteReservation(ctx context.Context, key string) error
	ReleaseReservation(ctx context.Context, key string) error
	AppendLog(ctx context.Context, e *domain.PublishLogEntry) error
}

// SessionOpener hands out decrypted credentials for automation runs. The
// returned buffer must be destroyed by the caller.
type SessionOpener interface {
	OpenSession(ctx context.Context) (*memguard.LockedBuffer, *domain.Session, error)
	Invalidate(ctx context.Context) error
}

// Service runs the two-phase publish protocol.
type Service struct {
	drafts   DraftStore
	attempts AttemptStore
	tokens   *TokenStore
	sessions SessionOpener
	client   automation.Client
	pacer    *ratelimit.Pacer
	logger   logger.Logger
	tracer   trace.Tracer
}

// NewService wires the protocol together.
func NewService(
	drafts DraftStore,
	attempts AttemptStore,
	tokens *TokenStore,
	sessions SessionOpener,
	client automation.Client,
	pacer *ratelimit.Pacer,
	log logger.Logger,
) *Service {
	return &Service{
		drafts:   drafts,
		attempts: attempts,
		tokens:   tokens,
		sessions: sessions,
		client:   client,
		pacer:    pacer,
		logger:   log,
		tracer:   otel.Tracer("publish-service"),
	}
}

// Prepare re-validates a draft and, when it passes, issues a publish token
// bound to the draft's current revision. The fresh validation verdict is
// persisted either way; a failing draft returns domain.ErrNotReady with
// the verdict attached.
func (s *Service) Prepare(ctx context.Context, draftID string, dryRun bool) (*domain.PublishToken, *domain.ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "publish.prepare",
		trace.WithAttributes(
			attribute.String("draft_id", draftID),
			attribute.Bool("dry_run", dryRun),
		))
	defer span.End()

	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, nil, err
	}
	if draft.State != domain.DraftStateDraft {
		return nil, nil, fmt.Errorf("%w: draft is %s", domain.ErrNotReady, draft.State)
	}

	result := validation.Validate(draft)
	if setErr := s.drafts.SetValidation(ctx, draftID, result); setErr != nil {
		s.logger.Error("failed to persist validation verdict",
			logger.String("draft_id", draftID),
			logger.Error(setErr))
	}
	if !result.Ready {
		for _, field := range result.MissingFields {
			metrics.ValidationFailure(field)
		}
		return nil, &result, domain.ErrNotReady
	}

	token, err := s.tokens.Issue(ctx, draftID, draft.Revision, dryRun)
	if err != nil {
		return nil, nil, err
	}
	return token, &result, nil
}

// Publish redeems a token under an idempotency key and runs the
// marketplace submission. The key is reserved before any external action;
// whatever happens afterwards, the attempt lands in the publish log.
// A dryRun request rehearses the attempt without touching the marketplace;
// a token prepared as dry-run stays a dry run regardless of the flag here.
func (s *Service) Publish(ctx context.Context, tokenValue, idempotencyKey string, dryRun bool) (*domain.PublishResult, error) {
	start := time.Now()
	result, err := s.execute(ctx, tokenValue, idempotencyKey, dryRun)
	if label, counted := outcomeLabel(err); counted {
		metrics.PublishAttempt(label, time.Since(start))
	}
	return result, err
}

// outcomeLabel maps an execute result onto the attempt outcome taxonomy.
// Protocol rejections that never became an attempt are not counted.
func outcomeLabel(err error) (string, bool) {
	switch {
	case err == nil:
		return string(domain.PublishSuccess), true
	case errors.Is(err, domain.ErrDuplicatePublish):
		return string(domain.PublishDuplicate), true
	case errors.Is(err, domain.ErrExternalTimeout):
		return string(domain.PublishTimeout), true
	case errors.Is(err, domain.ErrVerificationRequired):
		return string(domain.PublishVerificationRequired), true
	case errors.Is(err, domain.ErrTokenExpired), errors.Is(err, domain.ErrNotFound):
		return "", false
	default:
		return string(domain.PublishFailed), true
	}
}

func (s *Service) execute(ctx context.Context, tokenValue, idempotencyKey string, dryRun bool) (*domain.PublishResult, error) {
	ctx, span := s.tracer.Start(ctx, "publish.execute",
		trace.WithAttributes(attribute.String("idempotency_key", idempotencyKey)))
	defer span.End()

	if idempotencyKey == "" {
		return nil, errors.New("idempotency key required")
	}

	token, err := s.tokens.Redeem(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("draft_id", token.DraftID))

	draft, err := s.drafts.GetByID(ctx, token.DraftID)
	if err != nil {
		return nil, err
	}
	if draft.State != domain.DraftStateDraft {
		// Rejected or already published since prepare; the token no
		// longer refers to a publishable draft.
		return nil, fmt.Errorf("%w: draft is %s", domain.ErrTokenExpired, draft.State)
	}
	if draft.Revision != token.Revision {
		// The draft was edited after prepare; its validated content no
		// longer matches what the token vouched for.
		return nil, fmt.Errorf("%w: draft revision changed", domain.ErrTokenExpired)
	}

	dryRun = dryRun || token.DryRun
	if err := s.reserve(ctx, idempotencyKey, token, dryRun); err != nil {
		return nil, err
	}

	if dryRun {
		return s.finishDryRun(ctx, draft, idempotencyKey)
	}
	return s.submit(ctx, draft, token, idempotencyKey)
}

// reserve claims the idempotency key, re-arming it only when the prior
// attempt with this key failed cleanly.
func (s *Service) reserve(ctx context.Context, key string, token *domain.PublishToken, dryRun bool) error {
	record, reserved, err := s.attempts.Reserve(ctx, key, token.DraftID, token.Token)
	if err != nil {
		return err
	}
	if reserved {
		return nil
	}

	if record.Status == domain.IdempotencyFailed {
		retried, retryErr := s.attempts.RetryReservation(ctx, key, token.Token)
		if retryErr != nil {
			return retryErr
		}
		if retried {
			return nil
		}
	}

	s.appendLog(ctx, &domain.PublishLogEntry{
		DraftID:        token.DraftID,
		IdempotencyKey: key,
		Outcome:        domain.PublishDuplicate,
		DryRun:         dryRun,
	})
	return domain.ErrDuplicatePublish
}

// finishDryRun completes the attempt without touching the marketplace.
func (s *Service) finishDryRun(ctx context.Context, draft *domain.Draft, key string) (*domain.PublishResult, error) {
	if err := s.attempts.CompleteReservation(ctx, key); err != nil {
		return nil, err
	}
	s.appendLog(ctx, &domain.PublishLogEntry{
		DraftID:        draft.ID,
		IdempotencyKey: key,
		Outcome:        domain.PublishSuccess,
		DryRun:         true,
	})

	s.logger.Info("dry-run publish completed",
		logger.String("draft_id", draft.ID),
		logger.String("idempotency_key", key))

	return &domain.PublishResult{DryRun: true}, nil
}

// submit performs the real marketplace submission.
func (s *Service) submit(ctx context.Context, draft *domain.Draft, token *domain.PublishToken, key string) (*domain.PublishResult, error) {
	creds, session, err := s.sessions.OpenSession(ctx)
	if err != nil {
		s.recordFailure(ctx, draft.ID, key, err)
		return nil, err
	}
	defer creds.Destroy()

	release, err := s.pacer.AcquireSession(ctx)
	if err != nil {
		s.recordFailure(ctx, draft.ID, key, err)
		return nil, err
	}
	defer release()

	if err := s.pacer.Wait(ctx); err != nil {
		s.recordFailure(ctx, draft.ID, key, err)
		return nil, err
	}

	outcome, err := s.client.PublishListing(ctx, creds.Bytes(), session.Identity, draft)
	if err != nil {
		return nil, s.classifyFailure(ctx, draft.ID, key, err)
	}

	if markErr := s.drafts.MarkPublished(ctx, draft.ID, token.Revision, outcome.ListingID, outcome.ListingURL); markErr != nil {
		// The listing exists on the marketplace; losing the local state
		// transition must not look like a retryable failure.
		s.logger.Error("listing created but draft state update failed",
			logger.String("draft_id", draft.ID),
			logger.String("listing_id", outcome.ListingID),
			logger.Error(markErr))
	}

	if err := s.attempts.CompleteReservation(ctx, key); err != nil {
		s.logger.Error("failed to complete idempotency reservation",
			logger.String("idempotency_key", key),
			logger.Error(err))
	}

	s.appendLog(ctx, &domain.PublishLogEntry{
		DraftID:        draft.ID,
		IdempotencyKey: key,
		Outcome:        domain.PublishSuccess,
		ListingID:      &outcome.ListingID,
		ListingURL:     &outcome.ListingURL,
	})
	s.pacer.OnSuccess()

	s.logger.Info("draft published",
		logger.String("draft_id", draft.ID),
		logger.String("listing_id", outcome.ListingID))

	return &domain.PublishResult{
		ListingID:  outcome.ListingID,
		ListingURL: outcome.ListingURL,
	}, nil
}

// classifyFailure maps an automation error onto the outcome taxonomy and
// settles the reservation accordingly.
func (s *Service) classifyFailure(ctx context.Context, draftID, key string, err error) error {
	detail := err.Error()

	switch {
	case errors.Is(err, domain.ErrExternalTimeout):
		// The submission may have landed; the reservation stays held so a
		// blind retry with the same key is refused until someone verifies.
		s.appendLog(ctx, &domain.PublishLogEntry{
			DraftID:        draftID,
			IdempotencyKey: key,
			Outcome:        domain.PublishTimeout,
			ErrorDetail:    &detail,
		})
		s.pacer.OnThrottled()

	case errors.Is(err, domain.ErrVerificationRequired):
		s.appendLog(ctx, &domain.PublishLogEntry{
			DraftID:        draftID,
			IdempotencyKey: key,
			Outcome:        domain.PublishVerificationRequired,
			ErrorDetail:    &detail,
		})
		s.releaseReservation(ctx, key)
		s.pacer.OnThrottled()

	case errors.Is(err, domain.ErrSessionInvalid):
		if invErr := s.sessions.Invalidate(ctx); invErr != nil && !errors.Is(invErr, domain.ErrSessionInvalid) {
			s.logger.Error("failed to invalidate session", logger.Error(invErr))
		}
		s.recordFailure(ctx, draftID, key, err)

	default:
		s.recordFailure(ctx, draftID, key, err)
	}

	return err
}

func (s *Service) recordFailure(ctx context.Context, draftID, key string, err error) {
	detail := err.Error()
	s.appendLog(ctx, &domain.PublishLogEntry{
		DraftID:        draftID,
		IdempotencyKey: key,
		Outcome:        domain.PublishFailed,
		ErrorDetail:    &detail,
	})
	s.releaseReservation(ctx, key)
}

func (s *Service) releaseReservation(ctx context.Context, key string) {
	if err := s.attempts.ReleaseReservation(ctx, key); err != nil {
		s.logger.Error("failed to release idempotency reservation",
			logger.String("idempotency_key", key),
			logger.Error(err))
	}
}

func (s *Service) appendLog(ctx context.Context, e *domain.PublishLogEntry) {
	if err := s.attempts.AppendLog(ctx, e); err != nil {
		s.logger.Error("failed to append publish log",
			logger.String("draft_id", e.DraftID),
			logger.Error(err))
	}
}

// Cancel revokes a prepared token before it is redeemed.
func (s *Service) Cancel(ctx context.Context, tokenValue string) error {
	return s.tokens.Revoke(ctx, tokenValue)
}

// Compile-time checks that the concrete implementations satisfy the stores.
var (
	_ DraftStore    = (*database.DraftRepository)(nil)
	_ AttemptStore  = (*database.PublishRepository)(nil)
	_ SessionOpener = (*vault.Vault)(nil)
)
