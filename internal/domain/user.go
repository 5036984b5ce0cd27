package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Roles assignable to a user.
const (
	RoleOwner = "OWNER"
	RoleVet   = "VET"
	RoleAdmin = "ADMIN"
)

// Authentication providers. Externally provisioned users carry no password hash.
const (
	ProviderEmail  = "EMAIL"
	ProviderGoogle = "GOOGLE"
)

// User represents an account that can authenticate against the API.
type User struct {
	ID                  uuid.UUID
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Role                string
	Provider            string
	EmailVerified       bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is inside an active lockout window.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// DisplayName returns the best available name for notifications.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return "Utilisateur"
}
