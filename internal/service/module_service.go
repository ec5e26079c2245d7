package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"homeledger/internal/interfaces"
	"homeledger/internal/model"
)

var (
	ErrUnknownModule   = errors.New("unknown module")
	ErrInvalidDocument = errors.New("module document must be a JSON object")
)

// ModuleService reads and writes the opaque per-module JSON documents. The
// documents belong to exactly one user; scoping to the caller happens in the
// handler via the authenticated user id.
type ModuleService struct {
	records interfaces.ModuleRecordRepository
}

func NewModuleService(records interfaces.ModuleRecordRepository) *ModuleService {
	return &ModuleService{records: records}
}

func (s *ModuleService) Get(ctx context.Context, userID uuid.UUID, module string) (*model.ModuleRecord, error) {
	if !model.KnownModule(module) {
		return nil, ErrUnknownModule
	}
	return s.records.Get(ctx, userID, module)
}

func (s *ModuleService) Put(ctx context.Context, userID uuid.UUID, module string, data []byte) error {
	if !model.KnownModule(module) {
		return ErrUnknownModule
	}
	if !isJSONObject(data) {
		return ErrInvalidDocument
	}
	return s.records.Upsert(ctx, userID, module, data)
}

func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(data)
}
