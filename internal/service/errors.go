package service

import (
	"fmt"
	"net/http"
	"time"
)

// Stable user-facing messages. Anything touching credential or token
// validity collapses onto a generic wording; the precise cause only goes to
// the audit log.
const (
	msgInvalidCredentials = "Email ou mot de passe incorrect"
	msgInvalidToken       = "Token invalide ou expiré"
	msgEmailTaken         = "Un compte existe déjà avec cet email"
	msgWrongPassword      = "Mot de passe actuel incorrect"
	msgSamePassword       = "Le nouveau mot de passe doit être différent de l'ancien"
	msgAccountLocked      = "Compte temporairement verrouillé suite à plusieurs tentatives échouées"
)

// AuthError is the typed failure returned by the services. Handlers map it
// onto HTTP; everything else is treated as an infrastructure failure.
type AuthError struct {
	Code        string
	Description string
	Status      int

	// LockedUntil is set only on account_locked, the one case allowed to
	// reveal state.
	LockedUntil *time.Time
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newBadRequest(desc string) *AuthError {
	return &AuthError{Code: "invalid_request", Description: desc, Status: http.StatusBadRequest}
}

func newAuthFailed(desc string) *AuthError {
	return &AuthError{Code: "authentication_failed", Description: desc, Status: http.StatusUnauthorized}
}

func newAccountLocked(until time.Time) *AuthError {
	u := until
	return &AuthError{Code: "account_locked", Description: msgAccountLocked, Status: http.StatusLocked, LockedUntil: &u}
}

func newNotFound(desc string) *AuthError {
	return &AuthError{Code: "not_found", Description: desc, Status: http.StatusNotFound}
}
