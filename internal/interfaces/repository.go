package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"homeledger/internal/database"
	"homeledger/internal/model"
)

// UserRepository defines the interface for user-related database operations.
// WithQuerier returns a copy bound to the given querier so the same calls can
// run inside a transaction scope.
type UserRepository interface {
	WithQuerier(q database.Querier) UserRepository
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// RecordLoginFailure atomically increments the failed-attempt counter and
	// sets the lockout expiry once the post-increment count reaches
	// maxAttempts. It returns the new counter value.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration) (int, error)
	// RecordLoginSuccess resets the counter, clears any lockout and stamps
	// the last-login time.
	RecordLoginSuccess(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenRepository persists refresh tokens.
type RefreshTokenRepository interface {
	WithQuerier(q database.Querier) RefreshTokenRepository
	Insert(ctx context.Context, t *model.RefreshToken) error
	// Prune deletes all of the user's tokens except the keep most recently
	// created (creation time, ties broken by insertion order).
	Prune(ctx context.Context, userID uuid.UUID, keep int) error
	// Lookup returns the stored token and whether its owner is active,
	// without consuming it.
	Lookup(ctx context.Context, token string) (*model.RefreshToken, bool, error)
	// DeleteReturning atomically deletes the token row and returns it along
	// with the owner's active flag. At most one concurrent caller can
	// succeed for a given token; the rest see ErrTokenNotFound.
	DeleteReturning(ctx context.Context, token string) (*model.RefreshToken, bool, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// ModuleRecordRepository stores the opaque per-module JSON documents.
type ModuleRecordRepository interface {
	WithQuerier(q database.Querier) ModuleRecordRepository
	InitDefaults(ctx context.Context, userID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID, module string) (*model.ModuleRecord, error)
	Upsert(ctx context.Context, userID uuid.UUID, module string, data []byte) error
}

// TxRunner runs a function inside a transaction scope, committing on nil and
// rolling back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(scope *database.TxScope) error) error
}

var _ TxRunner = (*database.TxManager)(nil)
