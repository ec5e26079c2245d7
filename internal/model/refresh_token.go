package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one issued long-lived credential. The token string is an
// opaque random value presented verbatim by the client; it carries no claims.
type RefreshToken struct {
	ID        int64
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
