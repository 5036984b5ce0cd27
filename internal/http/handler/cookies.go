package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Benseddik-Fethi/petcare-app/internal/config"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"

	// The refresh cookie is scoped so the browser only attaches it to the
	// auth endpoints, never to regular API calls.
	refreshCookiePath = "/api/auth"
)

// cookieWriter centralizes auth cookie attributes. Both cookies are HttpOnly;
// Secure and SameSite come from configuration so local development over
// plain HTTP keeps working.
type cookieWriter struct {
	cfg config.Config
}

func (w cookieWriter) setAuthCookies(c *gin.Context, access, refresh string) {
	c.SetSameSite(sameSiteMode(w.cfg.CookieSameSite))
	c.SetCookie(accessCookie, access, int(w.cfg.AccessTokenTTL.Seconds()), "/", w.cfg.CookieDomain, w.cfg.CookieSecure, true)
	c.SetCookie(refreshCookie, refresh, int(w.cfg.RefreshTokenTTL.Seconds()), refreshCookiePath, w.cfg.CookieDomain, w.cfg.CookieSecure, true)
}

func (w cookieWriter) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(sameSiteMode(w.cfg.CookieSameSite))
	c.SetCookie(accessCookie, "", -1, "/", w.cfg.CookieDomain, w.cfg.CookieSecure, true)
	c.SetCookie(refreshCookie, "", -1, refreshCookiePath, w.cfg.CookieDomain, w.cfg.CookieSecure, true)
}

func sameSiteMode(value string) http.SameSite {
	switch value {
	case "None":
		return http.SameSiteNoneMode
	case "Lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteStrictMode
	}
}
