package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Benseddik-Fethi/petcare-app/internal/config"
	"github.com/Benseddik-Fethi/petcare-app/internal/http/middleware"
	"github.com/Benseddik-Fethi/petcare-app/internal/service"
)

const minPasswordLength = 8

// AuthHandler exposes the auth and account-lifecycle endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Users   *service.UserService
	cookies cookieWriter
}

// NewAuthHandler wires the handler.
func NewAuthHandler(cfg config.Config, auth *service.AuthService, users *service.UserService) *AuthHandler {
	return &AuthHandler{Auth: auth, Users: users, cookies: cookieWriter{cfg: cfg}}
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// Register creates an account and opens a first session.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email et mot de passe sont requis"})
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Le mot de passe doit contenir au moins 8 caractères"})
		return
	}

	resp, err := h.Auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}, requestMeta(c))
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.cookies.setAuthCookies(c, resp.AccessToken, resp.RefreshToken)
	c.JSON(http.StatusCreated, resp)
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email et mot de passe sont requis"})
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.cookies.setAuthCookies(c, resp.AccessToken, resp.RefreshToken)
	c.JSON(http.StatusOK, resp)
}

// Refresh rotates the refresh token. The token is read from the scoped
// cookie first, then from the body for non-browser clients.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refresh := h.refreshTokenFrom(c)
	if refresh == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "error_description": "Refresh token manquant"})
		return
	}

	resp, err := h.Auth.Refresh(c.Request.Context(), refresh, requestMeta(c))
	if err != nil {
		h.cookies.clearAuthCookies(c)
		respondAuthError(c, err)
		return
	}

	h.cookies.setAuthCookies(c, resp.AccessToken, resp.RefreshToken)
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented session and clears cookies. It succeeds even
// without a valid token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Auth.Logout(c.Request.Context(), h.refreshTokenFrom(c), requestMeta(c)); err != nil {
		respondAuthError(c, err)
		return
	}
	h.cookies.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Déconnexion réussie"})
}

// LogoutAll revokes every session of the authenticated user.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondMissingIdentity(c)
		return
	}

	count, err := h.Auth.LogoutAll(c.Request.Context(), userID, requestMeta(c))
	if err != nil {
		respondAuthError(c, err)
		return
	}
	h.cookies.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Déconnexion réussie", "revokedSessions": count})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondMissingIdentity(c)
		return
	}

	user, err := h.Auth.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// VerifyEmail consumes the emailed verification token.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.Token
		}
	}

	ok, err := h.Users.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Token invalide ou expiré"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email vérifié avec succès"})
}

// SendVerification issues a verification email for the authenticated user.
func (h *AuthHandler) SendVerification(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondMissingIdentity(c)
		return
	}

	if err := h.Users.SendVerificationEmail(c.Request.Context(), userID); err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email de vérification envoyé"})
}

// ResendVerification re-issues the verification email. The response does not
// reveal whether the account exists.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		respondInvalidPayload(c)
		return
	}

	if err := h.Users.ResendVerificationEmail(c.Request.Context(), req.Email); err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Si un compte existe, un email de vérification a été envoyé"})
}

// ForgotPassword starts the reset flow without revealing account existence.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		respondInvalidPayload(c)
		return
	}

	if err := h.Users.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Si un compte existe, un email de réinitialisation a été envoyé"})
}

// ValidateResetToken lets the frontend check a reset link before showing the
// form. The token is not consumed.
func (h *AuthHandler) ValidateResetToken(c *gin.Context) {
	ok, err := h.Users.ValidateResetToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok})
}

// ResetPassword consumes the reset token and replaces the password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		respondInvalidPayload(c)
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Le mot de passe doit contenir au moins 8 caractères"})
		return
	}

	if err := h.Users.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mot de passe réinitialisé avec succès"})
}

// ChangePassword replaces the password of the authenticated user.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondMissingIdentity(c)
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.CurrentPassword == "" {
		respondInvalidPayload(c)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Le mot de passe doit contenir au moins 8 caractères"})
		return
	}

	if err := h.Users.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mot de passe modifié avec succès"})
}

// ExchangeOAuthCode swaps the short-lived code from the OAuth callback
// redirect for the parked token pair.
func (h *AuthHandler) ExchangeOAuthCode(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}

	resp, err := h.Auth.ExchangeOAuthCode(c.Request.Context(), req.Code, requestMeta(c))
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.cookies.setAuthCookies(c, resp.AccessToken, resp.RefreshToken)
	c.JSON(http.StatusOK, resp)
}

// Health answers liveness probes.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(refreshCookie); err == nil && cookie != "" {
		return cookie
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func respondInvalidPayload(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Requête invalide"})
}

func respondMissingIdentity(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "error_description": "Authentification requise"})
}

func respondAuthError(c *gin.Context, err error) {
	if authErr, ok := err.(*service.AuthError); ok {
		body := gin.H{"error": authErr.Code, "error_description": authErr.Description}
		if authErr.LockedUntil != nil {
			body["lockedUntil"] = authErr.LockedUntil
		}
		c.JSON(authErr.Status, body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Une erreur interne est survenue"})
}
