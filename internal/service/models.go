package service

import (
	"strings"

	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
)

// RequestMeta carries the client attributes recorded alongside sessions and
// audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// UserView is the user shape returned to clients. The password hash and
// lockout bookkeeping never leave the service layer.
type UserView struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Role          string `json:"role"`
	Provider      string `json:"provider"`
	EmailVerified bool   `json:"emailVerified"`
}

// AuthTokens is the result of every flow that establishes a session.
type AuthTokens struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int64    `json:"expiresIn"`
	User         UserView `json:"user"`
}

// RegisterInput is the payload accepted by Register.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func newUserView(user domain.User) UserView {
	return UserView{
		ID:            user.ID.String(),
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Role:          user.Role,
		Provider:      user.Provider,
		EmailVerified: user.EmailVerified,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
