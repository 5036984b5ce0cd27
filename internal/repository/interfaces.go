package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
)

// ErrDuplicateEmail reports an insert that lost a uniqueness race on the
// email column after the caller's existence pre-check passed.
var ErrDuplicateEmail = errors.New("duplicate email")

// UserRepository exposes persistence for user accounts. Lockout bookkeeping
// is applied store-side as a single atomic statement per row so that
// concurrent failed attempts cannot race past the threshold.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error

	// RecordLoginFailure increments the failure counter and, when the
	// counter crosses maxAttempts while no window is active, arms a lockout
	// window of lockDuration. It reports whether this call armed one.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockDuration time.Duration, now time.Time) (bool, error)
	ResetLoginFailures(ctx context.Context, id uuid.UUID) error
}

// SessionRepository persists refresh-token lineages. Sessions are looked up
// by token digest, never by raw token.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	FindValidByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.Session, error)

	// Revoke marks the session revoked and reports whether this call
	// claimed the row. False means another revocation got there first;
	// rotation must treat that as losing the race, not as success.
	Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

// OneTimeTokenRepository backs the verification and password-reset token
// tables. Consume is a compare-and-set claim: at most one caller ever
// receives a given token back.
type OneTimeTokenRepository interface {
	Create(ctx context.Context, token domain.OneTimeToken) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (domain.OneTimeToken, error)
	FindPendingByHash(ctx context.Context, tokenHash string, now time.Time) (domain.OneTimeToken, error)
	InvalidateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// AuditLogRepository appends immutable security-event records.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLog) error
}

// CodeStore holds OAuth authorization codes for the few seconds between
// callback and exchange. Consume removes the code atomically; a second call
// with the same code returns nothing.
type CodeStore interface {
	Save(ctx context.Context, code string, data domain.AuthorizationCode, ttl time.Duration) error
	Consume(ctx context.Context, code string) (*domain.AuthorizationCode, error)
}
