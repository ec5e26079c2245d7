package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"homeledger/internal/database"
	"homeledger/internal/interfaces"
	"homeledger/internal/model"
)

// ModuleRecordRepositoryImpl stores the opaque per-module JSON documents
type ModuleRecordRepositoryImpl struct {
	db database.Querier
}

var _ interfaces.ModuleRecordRepository = (*ModuleRecordRepositoryImpl)(nil)

func NewModuleRecordRepository(db database.Querier) interfaces.ModuleRecordRepository {
	return &ModuleRecordRepositoryImpl{db: db}
}

func (r *ModuleRecordRepositoryImpl) WithQuerier(q database.Querier) interfaces.ModuleRecordRepository {
	return &ModuleRecordRepositoryImpl{db: q}
}

// InitDefaults creates the empty default document for every module. Called
// once per user during registration, inside the registration transaction.
func (r *ModuleRecordRepositoryImpl) InitDefaults(ctx context.Context, userID uuid.UUID) error {
	for _, module := range model.Modules() {
		_, err := r.db.Exec(ctx,
			`INSERT INTO module_records (user_id, module, data)
			 VALUES ($1, $2, '{}'::jsonb)
			 ON CONFLICT (user_id, module) DO NOTHING`,
			userID, module)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ModuleRecordRepositoryImpl) Get(ctx context.Context, userID uuid.UUID, module string) (*model.ModuleRecord, error) {
	rec := model.ModuleRecord{UserID: userID, Module: module}
	err := r.db.QueryRow(ctx,
		`SELECT data, updated_at FROM module_records WHERE user_id = $1 AND module = $2`,
		userID, module).Scan(&rec.Data, &rec.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *ModuleRecordRepositoryImpl) Upsert(ctx context.Context, userID uuid.UUID, module string, data []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO module_records (user_id, module, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, module)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		userID, module, data)
	return err
}
