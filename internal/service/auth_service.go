package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"homeledger/internal/apperrors"
	"homeledger/internal/database"
	"homeledger/internal/interfaces"
	"homeledger/internal/model"
	"homeledger/internal/repository"
	"homeledger/internal/session"
	"homeledger/internal/throttle"
	"homeledger/internal/token"
)

// Config carries the tunables the auth service needs beyond its
// collaborators.
type Config struct {
	AccessTokenTTL time.Duration
	BcryptCost     int
}

// AuthService orchestrates registration, login, refresh and logout. It holds
// no state of its own; every multi-row mutation runs inside a transaction
// scope.
type AuthService struct {
	users    interfaces.UserRepository
	modules  interfaces.ModuleRecordRepository
	sessions *session.Store
	throttle *throttle.Throttle
	codec    *token.Codec
	txm      interfaces.TxRunner
	cfg      Config
	log      *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users interfaces.UserRepository,
	modules interfaces.ModuleRecordRepository,
	sessions *session.Store,
	throttle *throttle.Throttle,
	codec *token.Codec,
	txm interfaces.TxRunner,
	cfg Config,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		modules:  modules,
		sessions: sessions,
		throttle: throttle,
		codec:    codec,
		txm:      txm,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
	)
}

// AuthResult is the outcome of any operation that establishes a session.
type AuthResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// Register creates a new account, initializes the default per-module records
// and issues both tokens. The whole sequence is one transaction: a failure
// at any step leaves no trace of the user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Active:       true,
		Created:      time.Now(),
	}

	var accessToken, refreshToken string
	err = s.txm.WithinTx(ctx, func(scope *database.TxScope) error {
		q := scope.Querier()

		if err := s.users.WithQuerier(q).Create(ctx, user); err != nil {
			return err
		}

		// Module defaults run in their own nested scope.
		if err := scope.Begin(ctx); err != nil {
			return err
		}
		if err := s.modules.WithQuerier(q).InitDefaults(ctx, user.ID); err != nil {
			if rbErr := scope.Rollback(ctx); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
		if err := scope.Commit(ctx); err != nil {
			return err
		}

		var issueErr error
		refreshToken, issueErr = s.sessions.WithQuerier(q).Issue(ctx, user.ID)
		if issueErr != nil {
			return issueErr
		}

		// The access token is stateless, but issuing it here keeps the
		// whole registration all-or-nothing: a signing failure rolls the
		// account back too.
		accessToken, issueErr = s.issueAccess(user)
		return issueErr
	})
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Login authenticates a user and establishes a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	if !s.throttle.CheckRateLimit(throttle.Identifier(email)) {
		return nil, apperrors.ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		// Same answer as a bad password, so callers cannot probe which
		// emails exist.
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if s.throttle.IsLocked(user) {
		return nil, apperrors.ErrAccountLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		if recErr := s.throttle.RecordFailedLogin(ctx, user.ID); recErr != nil {
			s.log.Error("recording failed login", slog.Any("error", recErr))
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.Active {
		return nil, apperrors.ErrAccountInactive
	}

	if err := s.throttle.RecordSuccessfulLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil

	refreshToken, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh rotates the presented refresh token and mints a new access token
// for its owner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	userID, newRefresh, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperrors.ErrUserInactive
	}
	if err != nil {
		return nil, err
	}

	accessToken, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: newRefresh}, nil
}

// Logout revokes the presented refresh token; with everywhere set it also
// revokes every other session of the calling user. Both paths are
// idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, everywhere bool, userID uuid.UUID) error {
	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	if everywhere {
		return s.sessions.RevokeAll(ctx, userID)
	}
	return nil
}

// Authenticate verifies an access token and resolves it to an active user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (uuid.UUID, error) {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return uuid.Nil, err
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, apperrors.ErrInvalidPayload
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return uuid.Nil, apperrors.ErrUserInactive
	}
	if err != nil {
		return uuid.Nil, err
	}
	if !user.Active {
		return uuid.Nil, apperrors.ErrUserInactive
	}

	return userID, nil
}

func (s *AuthService) issueAccess(user *model.User) (string, error) {
	return s.codec.Issue(map[string]any{
		"sub":   user.ID.String(),
		"email": user.Email,
	}, s.cfg.AccessTokenTTL)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
