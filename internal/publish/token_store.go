// Package publish implements the two-phase publish protocol: prepare
// issues a short-lived token against a validated draft, publish redeems it
// exactly once under an idempotency key.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

const tokenKeyPrefix = "publish:token:"

// TokenStore keeps publish tokens in Redis with their TTL. A token is
// bound to the draft revision it was issued against; redeeming is
// destructive so each token works at most once.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewTokenStore creates a token store. A zero ttl falls back to the
// domain default.
func NewTokenStore(client *redis.Client, ttl time.Duration, log logger.Logger) *TokenStore {
	if ttl <= 0 {
		ttl = domain.PublishTokenTTL
	}
	return &TokenStore{client: client, ttl: ttl, logger: log}
}

func (s *TokenStore) key(token string) string {
	return tokenKeyPrefix + token
}

// Issue creates a token for the draft at its current revision.
func (s *TokenStore) Issue(ctx context.Context, draftID string, revision int, dryRun bool) (*domain.PublishToken, error) {
	token := &domain.PublishToken{
		Token:     uuid.NewString(),
		DraftID:   draftID,
		Revision:  revision,
		DryRun:    dryRun,
		ExpiresAt: time.Now().Add(s.ttl),
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("marshal token: %w", err)
	}

	if err := s.client.Set(ctx, s.key(token.Token), payload, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	s.logger.Debug("publish token issued",
		logger.String("draft_id", draftID),
		logger.Int("revision", revision),
		logger.Bool("dry_run", dryRun),
		logger.Time("expires_at", token.ExpiresAt))

	return token, nil
}

// Redeem consumes a token. The read-and-delete is atomic, so concurrent
// redeems of the same token see it exactly once; a missing or expired
// token returns domain.ErrTokenExpired.
func (s *TokenStore) Redeem(ctx context.Context, token string) (*domain.PublishToken, error) {
	payload, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("redeem token: %w", err)
	}

	var t domain.PublishToken
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &t, nil
}

// Revoke discards a token before its TTL, used by explicit cancel.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	deleted, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if deleted == 0 {
		return domain.ErrTokenExpired
	}
	return nil
}
