package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"homeledger/internal/apperrors"
	"homeledger/internal/service"
)

type userIDKey struct{}

// Authenticator verifies the bearer access token on every request and puts
// the authenticated user id on the context.
func Authenticator(auth *service.AuthService, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearer(r)
			if tokenString == "" {
				writeAuthError(w, "No token provided", http.StatusUnauthorized)
				return
			}

			userID, err := auth.Authenticate(r.Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, apperrors.ErrUserInactive):
					writeAuthError(w, err.Error(), http.StatusForbidden)
				case errors.Is(err, apperrors.ErrMalformedToken),
					errors.Is(err, apperrors.ErrBadSignature),
					errors.Is(err, apperrors.ErrInvalidPayload),
					errors.Is(err, apperrors.ErrExpired):
					writeAuthError(w, err.Error(), http.StatusUnauthorized)
				default:
					log.Error("authenticating request", slog.Any("error", err))
					writeAuthError(w, "Internal server error", http.StatusInternalServerError)
				}
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id placed on the context by
// Authenticator.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// WithUserID returns a context carrying the given user id. Exposed for
// handler tests.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

func extractBearer(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
