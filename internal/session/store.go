// Package session manages the lifecycle of long-lived refresh tokens.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"homeledger/internal/apperrors"
	"homeledger/internal/database"
	"homeledger/internal/interfaces"
	"homeledger/internal/model"
	"homeledger/internal/repository"
)

// MaxLivePerUser caps the number of live refresh tokens per user. Issuing a
// new token prunes everything older than the newest MaxLivePerUser.
const MaxLivePerUser = 5

const tokenBytes = 32

// Unique-constraint collisions on a fresh 256-bit value are effectively
// impossible, but the store regenerates rather than failing the request.
const insertRetries = 3

type Store struct {
	tokens interfaces.RefreshTokenRepository
	txm    interfaces.TxRunner
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(tokens interfaces.RefreshTokenRepository, txm interfaces.TxRunner, ttl time.Duration) *Store {
	return &Store{tokens: tokens, txm: txm, ttl: ttl, now: time.Now}
}

// NewStoreAt builds a store with an injected clock for tests.
func NewStoreAt(tokens interfaces.RefreshTokenRepository, txm interfaces.TxRunner, ttl time.Duration, now func() time.Time) *Store {
	return &Store{tokens: tokens, txm: txm, ttl: ttl, now: now}
}

// WithQuerier returns a copy whose repository calls run on q, so issuance can
// participate in an enclosing transaction scope.
func (s *Store) WithQuerier(q database.Querier) *Store {
	cp := *s
	cp.tokens = s.tokens.WithQuerier(q)
	return &cp
}

// Issue generates a new opaque refresh token for the user, persists it and
// prunes the user's tokens down to the MaxLivePerUser most recent.
func (s *Store) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	now := s.now()

	for attempt := 0; attempt < insertRetries; attempt++ {
		value, err := randomToken()
		if err != nil {
			return "", fmt.Errorf("generating refresh token: %w", err)
		}

		t := &model.RefreshToken{
			UserID:    userID,
			Token:     value,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}

		if err := s.tokens.Insert(ctx, t); err != nil {
			if errors.Is(err, repository.ErrTokenCollision) {
				continue
			}
			return "", err
		}

		if err := s.tokens.Prune(ctx, userID, MaxLivePerUser); err != nil {
			return "", err
		}
		return value, nil
	}

	return "", fmt.Errorf("issuing refresh token: %w", repository.ErrTokenCollision)
}

// Validate resolves the token to its owning user without consuming it.
func (s *Store) Validate(ctx context.Context, token string) (uuid.UUID, error) {
	t, active, err := s.tokens.Lookup(ctx, token)
	if err != nil {
		return uuid.Nil, err
	}
	if s.now().After(t.ExpiresAt) {
		return uuid.Nil, apperrors.ErrTokenExpired
	}
	if !active {
		return uuid.Nil, apperrors.ErrUserInactive
	}
	return t.UserID, nil
}

// Rotate consumes oldToken and issues a replacement as one atomic unit. The
// delete-and-check on the token row guarantees that of two concurrent
// rotations of the same token at most one succeeds; the loser sees
// ErrTokenNotFound as if the token were already invalid.
func (s *Store) Rotate(ctx context.Context, oldToken string) (uuid.UUID, string, error) {
	var (
		userID   uuid.UUID
		newToken string
	)

	err := s.txm.WithinTx(ctx, func(scope *database.TxScope) error {
		st := s.WithQuerier(scope.Querier())

		old, active, err := st.tokens.DeleteReturning(ctx, oldToken)
		if err != nil {
			return err
		}
		if s.now().After(old.ExpiresAt) {
			return apperrors.ErrTokenExpired
		}
		if !active {
			return apperrors.ErrUserInactive
		}

		userID = old.UserID
		newToken, err = st.Issue(ctx, userID)
		return err
	})
	if err != nil {
		return uuid.Nil, "", err
	}

	return userID, newToken, nil
}

// Revoke deletes one token. Revoking an absent token is a no-op.
func (s *Store) Revoke(ctx context.Context, token string) error {
	return s.tokens.Delete(ctx, token)
}

// RevokeAll deletes every token owned by the user ("log out everywhere").
func (s *Store) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.DeleteAllForUser(ctx, userID)
}

// SweepExpired deletes all tokens past expiry and reports how many were
// removed.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx)
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
