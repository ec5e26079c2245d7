package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"homeledger/internal/handler"
	"homeledger/internal/middleware"
	"homeledger/internal/service"
	"homeledger/internal/session"
	"homeledger/internal/test"
	"homeledger/internal/throttle"
	"homeledger/internal/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(t *testing.T) (*handler.AuthHandler, *service.AuthService, *test.MockStore) {
	t.Helper()

	store := test.NewMockStore()
	sessions := session.NewStore(store.RefreshTokens(), store.TxRunner(), 30*24*time.Hour)
	th := throttle.New(store.Users(), throttle.Config{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		RateLimit:         100,
		RateWindow:        5 * time.Minute,
	})
	codec := token.NewCodec([]byte("test-secret"))

	svc := service.NewAuthService(
		store.Users(), store.ModuleRecords(), sessions, th, codec, store.TxRunner(),
		service.Config{AccessTokenTTL: 15 * time.Minute, BcryptCost: bcrypt.MinCost},
		testLogger(),
	)
	return handler.NewAuthHandler(svc, testLogger()), svc, store
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	if ctx != nil {
		req = req.WithContext(ctx)
	}

	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestAuthHandler_Register(t *testing.T) {
	h, _, _ := newAuthHandler(t)

	tests := []struct {
		name           string
		requestBody    map[string]string
		wantStatusCode int
		wantErr        bool
	}{
		{
			name: "valid registration",
			requestBody: map[string]string{
				"email":    "test@example.com",
				"name":     "Test User",
				"password": "password123",
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "duplicate email",
			requestBody: map[string]string{
				"email":    "test@example.com",
				"name":     "Test User",
				"password": "password123",
			},
			wantStatusCode: http.StatusConflict,
			wantErr:        true,
		},
		{
			name: "invalid email",
			requestBody: map[string]string{
				"email":    "invalid-email",
				"name":     "Test User",
				"password": "password123",
			},
			wantStatusCode: http.StatusBadRequest,
			wantErr:        true,
		},
		{
			name: "short password",
			requestBody: map[string]string{
				"email":    "second@example.com",
				"name":     "Test User",
				"password": "short",
			},
			wantStatusCode: http.StatusBadRequest,
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.Register, "/auth/register", tt.requestBody, nil)
			assert.Equal(t, tt.wantStatusCode, w.Code)

			if tt.wantErr {
				var resp handler.ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.NotEmpty(t, resp.Error)
				return
			}

			var resp handler.AuthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.requestBody["email"], resp.User.Email)
			assert.NotEmpty(t, resp.AccessToken)
			assert.NotEmpty(t, resp.RefreshToken)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	h, svc, _ := newAuthHandler(t)

	_, err := svc.Register(context.Background(), service.RegisterInput{
		Email:    "test@example.com",
		Name:     "Test User",
		Password: "password123",
	})
	require.NoError(t, err)

	tests := []struct {
		name           string
		requestBody    map[string]string
		wantStatusCode int
	}{
		{
			name:           "valid login",
			requestBody:    map[string]string{"email": "test@example.com", "password": "password123"},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "wrong password",
			requestBody:    map[string]string{"email": "test@example.com", "password": "wrongpassword"},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "unknown email",
			requestBody:    map[string]string{"email": "nobody@example.com", "password": "password123"},
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.Login, "/auth/login", tt.requestBody, nil)
			assert.Equal(t, tt.wantStatusCode, w.Code)
		})
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	h, svc, _ := newAuthHandler(t)

	reg, err := svc.Register(context.Background(), service.RegisterInput{
		Email:    "test@example.com",
		Name:     "Test User",
		Password: "password123",
	})
	require.NoError(t, err)

	w := postJSON(t, h.Refresh, "/auth/refresh", map[string]string{"refresh_token": reg.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.AuthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEqual(t, reg.RefreshToken, resp.RefreshToken)

	t.Run("replayed token", func(t *testing.T) {
		w := postJSON(t, h.Refresh, "/auth/refresh", map[string]string{"refresh_token": reg.RefreshToken}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := postJSON(t, h.Refresh, "/auth/refresh", map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	h, svc, store := newAuthHandler(t)

	reg, err := svc.Register(context.Background(), service.RegisterInput{
		Email:    "test@example.com",
		Name:     "Test User",
		Password: "password123",
	})
	require.NoError(t, err)

	t.Run("without authentication", func(t *testing.T) {
		w := postJSON(t, h.Logout, "/auth/logout", map[string]any{"refresh_token": reg.RefreshToken}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("single session", func(t *testing.T) {
		ctx := middleware.WithUserID(context.Background(), reg.User.ID)
		w := postJSON(t, h.Logout, "/auth/logout", map[string]any{"refresh_token": reg.RefreshToken}, ctx)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, store.TokensForUser(reg.User.ID))
	})
}
