package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"homeledger/internal/apperrors"
	"homeledger/internal/database"
	"homeledger/internal/interfaces"
	"homeledger/internal/model"
)

// Common errors that can be returned by the repositories
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("module record not found")
	ErrTokenCollision = errors.New("refresh token value already exists")
)

const uniqueViolation = "23505"

// UserRepositoryImpl implements the UserRepository interface
type UserRepositoryImpl struct {
	db database.Querier
}

// Verify that UserRepositoryImpl implements UserRepository interface
var _ interfaces.UserRepository = (*UserRepositoryImpl)(nil)

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(db database.Querier) interfaces.UserRepository {
	return &UserRepositoryImpl{db: db}
}

// WithQuerier returns a copy bound to q, typically a transaction scope's
// connection.
func (r *UserRepositoryImpl) WithQuerier(q database.Querier) interfaces.UserRepository {
	return &UserRepositoryImpl{db: q}
}

// Create inserts a new user row
func (r *UserRepositoryImpl) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.Active, user.Created)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrDuplicateEmail
		}
		return err
	}

	return nil
}

const userColumns = `id, email, name, password_hash, is_active, failed_attempts, locked_until, last_login, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.Active, &user.FailedAttempts, &user.LockedUntil, &user.LastLogin, &user.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *UserRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetByID retrieves a user by id
func (r *UserRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// RecordLoginFailure increments the failed-attempt counter in a single
// statement so concurrent failures cannot lose increments. The lockout expiry
// is set when the post-increment count reaches maxAttempts.
func (r *UserRepositoryImpl) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx,
		`UPDATE users
		 SET failed_attempts = failed_attempts + 1,
		     locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN now() + $3 ELSE locked_until END
		 WHERE id = $1
		 RETURNING failed_attempts`,
		id, maxAttempts, lockFor).Scan(&attempts)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}

	return attempts, nil
}

// RecordLoginSuccess resets the failed-attempt counter, clears any lockout
// and updates the last-login time
func (r *UserRepositoryImpl) RecordLoginSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users
		 SET failed_attempts = 0,
		     locked_until = NULL,
		     last_login = now()
		 WHERE id = $1`,
		id)
	return err
}
