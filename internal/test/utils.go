// Package test provides shared in-memory fakes for service-level tests.
package test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"homeledger/internal/apperrors"
	"homeledger/internal/database"
	"homeledger/internal/interfaces"
	"homeledger/internal/model"
	"homeledger/internal/repository"
)

// MockStore implements an in-memory backing store for the mock repositories.
// All methods are safe for concurrent use; Now is swappable so tests can
// control lockout and expiry clocks.
type MockStore struct {
	mu           sync.Mutex
	usersByID    map[uuid.UUID]*model.User
	usersByEmail map[string]uuid.UUID
	tokens       map[string]*model.RefreshToken
	nextTokenID  int64
	records      map[uuid.UUID]map[string]json.RawMessage

	Now func() time.Time
}

func NewMockStore() *MockStore {
	return &MockStore{
		usersByID:    make(map[uuid.UUID]*model.User),
		usersByEmail: make(map[string]uuid.UUID),
		tokens:       make(map[string]*model.RefreshToken),
		records:      make(map[uuid.UUID]map[string]json.RawMessage),
		Now:          time.Now,
	}
}

// AddUser seeds a user directly, bypassing registration.
func (s *MockStore) AddUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.usersByID[u.ID] = &cp
	s.usersByEmail[u.Email] = u.ID
}

// User returns the stored user, or nil. The pointer is live so tests can
// flip fields like Active directly.
func (s *MockStore) User(id uuid.UUID) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usersByID[id]
}

// TokensForUser returns snapshots of the user's stored refresh tokens.
func (s *MockStore) TokensForUser(userID uuid.UUID) []model.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RefreshToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ModuleData returns the stored document for the user's module, or nil.
func (s *MockStore) ModuleData(userID uuid.UUID, module string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[userID][module]
}

func (s *MockStore) Users() interfaces.UserRepository                 { return &MockUserRepository{store: s} }
func (s *MockStore) RefreshTokens() interfaces.RefreshTokenRepository { return &MockRefreshTokenRepository{store: s} }
func (s *MockStore) ModuleRecords() interfaces.ModuleRecordRepository { return &MockModuleRecordRepository{store: s} }
func (s *MockStore) TxRunner() interfaces.TxRunner                    { return &MockTxRunner{} }

// MockUserRepository implements the interfaces.UserRepository interface
type MockUserRepository struct {
	store *MockStore
}

var _ interfaces.UserRepository = (*MockUserRepository)(nil)

func (r *MockUserRepository) WithQuerier(database.Querier) interfaces.UserRepository { return r }

func (r *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.usersByEmail[user.Email]; exists {
		return apperrors.ErrDuplicateEmail
	}
	cp := *user
	r.store.usersByID[user.ID] = &cp
	r.store.usersByEmail[user.Email] = user.ID
	return nil
}

func (r *MockUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	id, ok := r.store.usersByEmail[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *r.store.usersByID[id]
	return &cp, nil
}

func (r *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.usersByID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MockUserRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.usersByID[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	u.FailedAttempts++
	if u.FailedAttempts >= maxAttempts {
		until := r.store.Now().Add(lockFor)
		u.LockedUntil = &until
	}
	return u.FailedAttempts, nil
}

func (r *MockUserRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.usersByID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	now := r.store.Now()
	u.LastLogin = &now
	return nil
}

// MockRefreshTokenRepository implements the interfaces.RefreshTokenRepository
// interface with the same compare-and-delete contract as the SQL version.
type MockRefreshTokenRepository struct {
	store *MockStore
}

var _ interfaces.RefreshTokenRepository = (*MockRefreshTokenRepository)(nil)

func (r *MockRefreshTokenRepository) WithQuerier(database.Querier) interfaces.RefreshTokenRepository {
	return r
}

func (r *MockRefreshTokenRepository) Insert(ctx context.Context, t *model.RefreshToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.tokens[t.Token]; exists {
		return repository.ErrTokenCollision
	}
	r.store.nextTokenID++
	t.ID = r.store.nextTokenID
	cp := *t
	r.store.tokens[t.Token] = &cp
	return nil
}

func (r *MockRefreshTokenRepository) Prune(ctx context.Context, userID uuid.UUID, keep int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var owned []*model.RefreshToken
	for _, t := range r.store.tokens {
		if t.UserID == userID {
			owned = append(owned, t)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})
	for i := keep; i < len(owned); i++ {
		delete(r.store.tokens, owned[i].Token)
	}
	return nil
}

func (r *MockRefreshTokenRepository) ownerActive(t *model.RefreshToken) bool {
	if u, ok := r.store.usersByID[t.UserID]; ok {
		return u.Active
	}
	return true
}

func (r *MockRefreshTokenRepository) Lookup(ctx context.Context, token string) (*model.RefreshToken, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.tokens[token]
	if !ok {
		return nil, false, apperrors.ErrTokenNotFound
	}
	cp := *t
	return &cp, r.ownerActive(t), nil
}

func (r *MockRefreshTokenRepository) DeleteReturning(ctx context.Context, token string) (*model.RefreshToken, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.tokens[token]
	if !ok {
		return nil, false, apperrors.ErrTokenNotFound
	}
	delete(r.store.tokens, token)
	cp := *t
	return &cp, r.ownerActive(t), nil
}

func (r *MockRefreshTokenRepository) Delete(ctx context.Context, token string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.tokens, token)
	return nil
}

func (r *MockRefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for value, t := range r.store.tokens {
		if t.UserID == userID {
			delete(r.store.tokens, value)
		}
	}
	return nil
}

func (r *MockRefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := r.store.Now()
	var n int64
	for value, t := range r.store.tokens {
		if now.After(t.ExpiresAt) {
			delete(r.store.tokens, value)
			n++
		}
	}
	return n, nil
}

// MockModuleRecordRepository implements the interfaces.ModuleRecordRepository
// interface
type MockModuleRecordRepository struct {
	store *MockStore
}

var _ interfaces.ModuleRecordRepository = (*MockModuleRecordRepository)(nil)

func (r *MockModuleRecordRepository) WithQuerier(database.Querier) interfaces.ModuleRecordRepository {
	return r
}

func (r *MockModuleRecordRepository) InitDefaults(ctx context.Context, userID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	docs, ok := r.store.records[userID]
	if !ok {
		docs = make(map[string]json.RawMessage)
		r.store.records[userID] = docs
	}
	for _, module := range model.Modules() {
		if _, exists := docs[module]; !exists {
			docs[module] = json.RawMessage(`{}`)
		}
	}
	return nil
}

func (r *MockModuleRecordRepository) Get(ctx context.Context, userID uuid.UUID, module string) (*model.ModuleRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	data, ok := r.store.records[userID][module]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &model.ModuleRecord{
		UserID:    userID,
		Module:    module,
		Data:      append(json.RawMessage(nil), data...),
		UpdatedAt: r.store.Now(),
	}, nil
}

func (r *MockModuleRecordRepository) Upsert(ctx context.Context, userID uuid.UUID, module string, data []byte) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	docs, ok := r.store.records[userID]
	if !ok {
		docs = make(map[string]json.RawMessage)
		r.store.records[userID] = docs
	}
	docs[module] = append(json.RawMessage(nil), data...)
	return nil
}

// MockTxRunner runs the closure over a no-op scope. Transactional semantics
// are covered by the database package tests.
type MockTxRunner struct{}

var _ interfaces.TxRunner = (*MockTxRunner)(nil)

func (MockTxRunner) WithinTx(ctx context.Context, fn func(scope *database.TxScope) error) error {
	scope := database.NewTxScope(NopQuerier{})
	if err := scope.Begin(ctx); err != nil {
		return err
	}
	if err := fn(scope); err != nil {
		_ = scope.Rollback(ctx)
		return err
	}
	return scope.Commit(ctx)
}

// NopQuerier satisfies database.Querier without touching any storage.
type NopQuerier struct{}

var _ database.Querier = NopQuerier{}

func (NopQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (NopQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (NopQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nopRow{}
}

type nopRow struct{}

func (nopRow) Scan(...any) error { return pgx.ErrNoRows }
