package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("missing required variables", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "")

		if _, err := Load(); err == nil {
			t.Error("expected error but got none")
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/homeledger_test")
		t.Setenv("JWT_SECRET", "test-secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Port != "8080" {
			t.Errorf("got port %q, want %q", cfg.Port, "8080")
		}
		if cfg.AccessTokenTTL != 15*time.Minute {
			t.Errorf("got access token TTL %v, want %v", cfg.AccessTokenTTL, 15*time.Minute)
		}
		if cfg.RefreshTokenTTL != 720*time.Hour {
			t.Errorf("got refresh token TTL %v, want %v", cfg.RefreshTokenTTL, 720*time.Hour)
		}
		if cfg.MaxFailedAttempts != 5 {
			t.Errorf("got max failed attempts %d, want 5", cfg.MaxFailedAttempts)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/homeledger_test")
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("ACCESS_TOKEN_TTL", "5m")
		t.Setenv("BCRYPT_COST", "4")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.AccessTokenTTL != 5*time.Minute {
			t.Errorf("got access token TTL %v, want %v", cfg.AccessTokenTTL, 5*time.Minute)
		}
		if cfg.BcryptCost != 4 {
			t.Errorf("got bcrypt cost %d, want 4", cfg.BcryptCost)
		}
	})
}
