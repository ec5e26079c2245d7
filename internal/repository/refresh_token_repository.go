package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"homeledger/internal/apperrors"
	"homeledger/internal/database"
	"homeledger/internal/interfaces"
	"homeledger/internal/model"
)

// RefreshTokenRepositoryImpl implements the RefreshTokenRepository interface
type RefreshTokenRepositoryImpl struct {
	db database.Querier
}

var _ interfaces.RefreshTokenRepository = (*RefreshTokenRepositoryImpl)(nil)

// NewRefreshTokenRepository creates a new RefreshTokenRepository instance
func NewRefreshTokenRepository(db database.Querier) interfaces.RefreshTokenRepository {
	return &RefreshTokenRepositoryImpl{db: db}
}

func (r *RefreshTokenRepositoryImpl) WithQuerier(q database.Querier) interfaces.RefreshTokenRepository {
	return &RefreshTokenRepositoryImpl{db: q}
}

// Insert stores a new refresh token. The token column carries a unique
// constraint; a collision surfaces as ErrTokenCollision so the caller can
// regenerate and retry.
func (r *RefreshTokenRepositoryImpl) Insert(ctx context.Context, t *model.RefreshToken) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO refresh_tokens (user_id, token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		t.UserID, t.Token, t.ExpiresAt, t.CreatedAt).Scan(&t.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrTokenCollision
		}
		return err
	}

	return nil
}

// Prune deletes every token of the user except the keep most recently
// created. Creation-time ties are broken by the serial id, i.e. insertion
// order.
func (r *RefreshTokenRepositoryImpl) Prune(ctx context.Context, userID uuid.UUID, keep int) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM refresh_tokens
		 WHERE user_id = $1
		   AND id NOT IN (
		       SELECT id FROM refresh_tokens
		       WHERE user_id = $1
		       ORDER BY created_at DESC, id DESC
		       LIMIT $2
		   )`,
		userID, keep)
	return err
}

// Lookup returns the stored token and the owner's active flag without
// consuming the token.
func (r *RefreshTokenRepositoryImpl) Lookup(ctx context.Context, token string) (*model.RefreshToken, bool, error) {
	var (
		t      model.RefreshToken
		active bool
	)
	err := r.db.QueryRow(ctx,
		`SELECT rt.id, rt.user_id, rt.token, rt.expires_at, rt.created_at, u.is_active
		 FROM refresh_tokens rt
		 JOIN users u ON u.id = rt.user_id
		 WHERE rt.token = $1`,
		token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &active)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, apperrors.ErrTokenNotFound
	}
	if err != nil {
		return nil, false, err
	}

	return &t, active, nil
}

// DeleteReturning deletes the token row and returns it in one statement. Two
// concurrent calls for the same token cannot both get a row back, which is
// what makes rotation linearizable per token.
func (r *RefreshTokenRepositoryImpl) DeleteReturning(ctx context.Context, token string) (*model.RefreshToken, bool, error) {
	var (
		t      model.RefreshToken
		active bool
	)
	err := r.db.QueryRow(ctx,
		`DELETE FROM refresh_tokens rt
		 USING users u
		 WHERE rt.token = $1 AND u.id = rt.user_id
		 RETURNING rt.id, rt.user_id, rt.token, rt.expires_at, rt.created_at, u.is_active`,
		token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &active)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, apperrors.ErrTokenNotFound
	}
	if err != nil {
		return nil, false, err
	}

	return &t, active, nil
}

// Delete removes one token. Deleting an absent token is not an error.
func (r *RefreshTokenRepositoryImpl) Delete(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	return err
}

// DeleteAllForUser removes every token owned by the user
func (r *RefreshTokenRepositoryImpl) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}

// DeleteExpired removes all tokens past their expiry and reports how many
// were deleted
func (r *RefreshTokenRepositoryImpl) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
