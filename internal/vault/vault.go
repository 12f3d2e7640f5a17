// Package vault encrypts the marketplace credential set at rest and keeps
// decrypted material in locked memory while in use.
package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

// SessionStore is the persistence surface the vault needs.
type SessionStore interface {
	Save(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context) (*domain.Session, error)
	SetState(ctx context.Context, state domain.SessionState) error
	TouchValidated(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Vault stores exactly one encrypted credential set. The encryption key
// lives in a memguard enclave; plaintext credentials are only ever handed
// out inside locked buffers the caller must destroy.
type Vault struct {
	store  SessionStore
	keyEnc *memguard.Enclave
	logger logger.Logger
}

// New creates a Vault, reading the hex-encoded 32-byte key from the
// environment variable named in the config.
func New(cfg config.VaultConfig, store SessionStore, log logger.Logger) (*Vault, error) {
	raw := os.Getenv(cfg.KeyEnvVar)
	if raw == "" {
		return nil, fmt.Errorf("vault key environment variable %s not set", cfg.KeyEnvVar)
	}

	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("vault key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}

	memguard.CatchInterrupt()
	return NewWithKey(key, store, log), nil
}

// NewWithKey creates a Vault with an explicit key. The key slice is wiped.
func NewWithKey(key []byte, store SessionStore, log logger.Logger) *Vault {
	return &Vault{
		store:  store,
		keyEnc: memguard.NewEnclave(key),
		logger: log,
	}
}

// SaveSession encrypts a credential blob and stores it together with a
// freshly generated client identity. The previous session, if any, is
// replaced.
func (v *Vault) SaveSession(ctx context.Context, credentials []byte) (*domain.Session, error) {
	key, err := v.keyEnc.Open()
	if err != nil {
		return nil, fmt.Errorf("open vault key: %w", err)
	}
	defer key.Destroy()

	ciphertext, err := encrypt(key.Bytes(), credentials)
	if err != nil {
		return nil, fmt.Errorf("encrypt session: %w", err)
	}

	session := &domain.Session{
		Ciphertext: ciphertext,
		Identity:   NewIdentity(),
		State:      domain.SessionValid,
	}
	if err := v.store.Save(ctx, session); err != nil {
		return nil, err
	}

	v.logger.Info("marketplace session saved",
		logger.String("user_agent", session.Identity.UserAgent),
		logger.String("locale", session.Identity.Locale))

	return session, nil
}

// OpenSession returns the decrypted credential blob in a locked buffer the
// caller must Destroy, together with the session metadata. A missing or
// expired session returns domain.ErrSessionInvalid.
func (v *Vault) OpenSession(ctx context.Context) (*memguard.LockedBuffer, *domain.Session, error) {
	session, err := v.store.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrSessionInvalid
		}
		return nil, nil, err
	}
	if session.State != domain.SessionValid {
		return nil, nil, domain.ErrSessionInvalid
	}

	key, err := v.keyEnc.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open vault key: %w", err)
	}
	defer key.Destroy()

	plaintext, err := decrypt(key.Bytes(), session.Ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt session: %w", err)
	}

	// NewBufferFromBytes wipes the plaintext slice.
	return memguard.NewBufferFromBytes(plaintext), session, nil
}

// Status reports the session state and identity without decrypting
// anything. SessionUnset means no session was ever saved.
func (v *Vault) Status(ctx context.Context) (domain.SessionState, *domain.ClientIdentity, error) {
	session, err := v.store.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SessionUnset, nil, nil
		}
		return domain.SessionUnset, nil, err
	}
	return session.State, &session.Identity, nil
}

// Invalidate marks the stored session expired. Publishing halts until a
// fresh session is saved.
func (v *Vault) Invalidate(ctx context.Context) error {
	if err := v.store.SetState(ctx, domain.SessionExpired); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrSessionInvalid
		}
		return err
	}
	v.logger.Warn("marketplace session invalidated")
	return nil
}

// MarkValidated records a successful liveness check.
func (v *Vault) MarkValidated(ctx context.Context) error {
	return v.store.TouchValidated(ctx)
}

// DeleteSession removes the stored session entirely.
func (v *Vault) DeleteSession(ctx context.Context) error {
	return v.store.Delete(ctx)
}
