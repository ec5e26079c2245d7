package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string `env:"APP_ENV" env-default:"local"`
	Port        string `env:"PORT" env-default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JwtSecret   string `env:"JWT_SECRET"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	BcryptCost      int           `env:"BCRYPT_COST" env-default:"12"`

	MaxFailedAttempts int           `env:"MAX_FAILED_ATTEMPTS" env-default:"5"`
	LockoutDuration   time.Duration `env:"LOCKOUT_DURATION" env-default:"15m"`
	LoginRateLimit    int           `env:"LOGIN_RATE_LIMIT" env-default:"5"`
	LoginRateWindow   time.Duration `env:"LOGIN_RATE_WINDOW" env-default:"5m"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" env-default:"1h"`
}

// Load reads the configuration from a .env file or environment variables.
// It returns an error if any required variable is missing.
func Load() (*Config, error) {
	// Try to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if cfg.DatabaseURL == "" || cfg.JwtSecret == "" {
		return nil, fmt.Errorf("missing required environment variables: DATABASE_URL and JWT_SECRET must be set")
	}

	return &cfg, nil
}
