package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit event kinds.
const (
	AuditLoginSuccess    = "LOGIN_SUCCESS"
	AuditLoginFailed     = "LOGIN_FAILED"
	AuditAccountLocked   = "ACCOUNT_LOCKED"
	AuditLogout          = "LOGOUT"
	AuditLogoutAll       = "LOGOUT_ALL"
	AuditPasswordChanged = "PASSWORD_CHANGED"
	AuditEmailVerified   = "EMAIL_VERIFIED"
	AuditOAuthExchange   = "OAUTH_CODE_EXCHANGED"
)

// AuditLog is an append-only record of a security-relevant event. UserID is
// nil when the subject is unknown, e.g. a login attempt on an email that has
// no account.
type AuditLog struct {
	ID        int64
	Event     string
	UserID    *uuid.UUID
	Email     string
	IPAddress string
	UserAgent string
	Detail    string
	CreatedAt time.Time
}

// LoginSuccess builds a successful-login entry.
func LoginSuccess(user User, ip, userAgent string) AuditLog {
	id := user.ID
	return AuditLog{Event: AuditLoginSuccess, UserID: &id, Email: user.Email, IPAddress: ip, UserAgent: userAgent}
}

// LoginFailed builds a failed-login entry. The user pointer is nil for
// unknown emails.
func LoginFailed(userID *uuid.UUID, email, ip, userAgent, reason string) AuditLog {
	return AuditLog{Event: AuditLoginFailed, UserID: userID, Email: email, IPAddress: ip, UserAgent: userAgent, Detail: reason}
}

// AccountLocked builds an entry recording that a lockout window was armed.
func AccountLocked(user User, ip string) AuditLog {
	id := user.ID
	return AuditLog{Event: AuditAccountLocked, UserID: &id, Email: user.Email, IPAddress: ip}
}

// Logout builds a session-revocation entry.
func Logout(user User, ip string) AuditLog {
	id := user.ID
	return AuditLog{Event: AuditLogout, UserID: &id, Email: user.Email, IPAddress: ip}
}

// PasswordChanged builds an entry noting how the password was replaced,
// either "user_change" or "password_reset".
func PasswordChanged(user User, channel string) AuditLog {
	id := user.ID
	return AuditLog{Event: AuditPasswordChanged, UserID: &id, Email: user.Email, Detail: channel}
}
