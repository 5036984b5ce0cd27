package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server-side record backing one refresh-token lineage.
// The raw refresh token is never stored, only its digest. Revoked sessions
// are retained for audit.
type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	RefreshTokenHash string
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time
}

// Valid reports whether the session may still be exchanged. Validity is a
// store-side fact; token signature checks alone are never enough.
func (s Session) Valid(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
