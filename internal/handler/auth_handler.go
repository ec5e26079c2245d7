package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"homeledger/internal/apperrors"
	"homeledger/internal/middleware"
	"homeledger/internal/model"
	"homeledger/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	log         *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	Everywhere   bool   `json:"everywhere"`
}

type UserPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type AuthResponse struct {
	User         UserPayload `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.authService.Register(r.Context(), req)
	if err != nil {
		h.sendError(w, err, "handler.Register")
		return
	}

	sendJSON(w, http.StatusCreated, authResponse(res))
}

// Login handles user authentication and returns a token pair
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.sendError(w, err, "handler.Login")
		return
	}

	sendJSON(w, http.StatusOK, authResponse(res))
}

// Refresh rotates a refresh token and returns a fresh token pair
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.sendError(w, err, "handler.Refresh")
		return
	}

	sendJSON(w, http.StatusOK, authResponse(res))
}

// Logout revokes the caller's refresh token, or all of their sessions when
// everywhere is set
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken, req.Everywhere, userID); err != nil {
		h.sendError(w, err, "handler.Logout")
		return
	}

	sendJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func authResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		User:         userPayload(res.User),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
}

func userPayload(u *model.User) UserPayload {
	return UserPayload{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.Created,
	}
}

// sendError maps the error taxonomy to status codes. Anything unrecognized
// is a storage failure: logged in full, surfaced as a generic 500.
func (h *AuthHandler) sendError(w http.ResponseWriter, err error, op string) {
	var vErrs validation.Errors
	if errors.As(err, &vErrs) {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrDuplicateEmail):
		sendJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidCredentials),
		errors.Is(err, apperrors.ErrMalformedToken),
		errors.Is(err, apperrors.ErrBadSignature),
		errors.Is(err, apperrors.ErrInvalidPayload),
		errors.Is(err, apperrors.ErrExpired),
		errors.Is(err, apperrors.ErrTokenNotFound),
		errors.Is(err, apperrors.ErrTokenExpired):
		sendJSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrAccountLocked),
		errors.Is(err, apperrors.ErrAccountInactive),
		errors.Is(err, apperrors.ErrUserInactive):
		sendJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, apperrors.ErrRateLimited):
		sendJSONError(w, err.Error(), http.StatusTooManyRequests)
	default:
		h.log.Error("internal error", slog.String("op", op), slog.Any("error", err))
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func sendJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// Helper function to send JSON error responses
func sendJSONError(w http.ResponseWriter, message string, code int) {
	sendJSON(w, code, ErrorResponse{Error: message})
}
