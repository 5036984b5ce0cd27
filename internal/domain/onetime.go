package domain

import (
	"time"

	"github.com/google/uuid"
)

// OneTimeToken is the shared shape behind email-verification and
// password-reset tokens: single use, expiring, bound to one user. Only the
// digest of the raw value is persisted. Once Used is set the token is
// permanently dead, expired or not.
type OneTimeToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Pending reports whether the token can still be consumed.
func (t OneTimeToken) Pending(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// AuthorizationCode carries a pre-issued token pair between the OAuth
// callback redirect and the code exchange. It lives only seconds, in Redis.
type AuthorizationCode struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
}
