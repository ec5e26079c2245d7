package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"homeledger/internal/middleware"
	"homeledger/internal/repository"
	"homeledger/internal/service"
)

const maxDocumentBytes = 1 << 20

// ModuleHandler exposes the per-module JSON documents of the authenticated
// user. The routes sit behind the Authenticator middleware.
type ModuleHandler struct {
	moduleService *service.ModuleService
	log           *slog.Logger
}

func NewModuleHandler(moduleService *service.ModuleService, log *slog.Logger) *ModuleHandler {
	return &ModuleHandler{
		moduleService: moduleService,
		log:           log,
	}
}

type ModuleResponse struct {
	Module    string          `json:"module"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (h *ModuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	rec, err := h.moduleService.Get(r.Context(), userID, chi.URLParam(r, "module"))
	if err != nil {
		h.sendError(w, err, "handler.ModuleGet")
		return
	}

	sendJSON(w, http.StatusOK, ModuleResponse{
		Module:    rec.Module,
		Data:      rec.Data,
		UpdatedAt: rec.UpdatedAt,
	})
}

func (h *ModuleHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		sendJSONError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	module := chi.URLParam(r, "module")
	if err := h.moduleService.Put(r.Context(), userID, module, body); err != nil {
		h.sendError(w, err, "handler.ModulePut")
		return
	}

	sendJSON(w, http.StatusOK, map[string]string{"message": "Module updated", "module": module})
}

func (h *ModuleHandler) sendError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrUnknownModule),
		errors.Is(err, repository.ErrRecordNotFound):
		sendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidDocument):
		sendJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("internal error", slog.String("op", op), slog.Any("error", err))
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}
