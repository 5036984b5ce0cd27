package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Benseddik-Fethi/petcare-app/internal/config"
	"github.com/Benseddik-Fethi/petcare-app/internal/http/handler"
	httpmiddleware "github.com/Benseddik-Fethi/petcare-app/internal/http/middleware"
	"github.com/Benseddik-Fethi/petcare-app/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", authHandler.Health)

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/logout-all", authMiddleware.RequireAccessToken, authHandler.LogoutAll)
		auth.GET("/me", authMiddleware.RequireAccessToken, authHandler.Me)

		auth.GET("/verify-email", authHandler.VerifyEmail)
		auth.POST("/verify-email", authHandler.VerifyEmail)
		auth.POST("/send-verification", authMiddleware.RequireAccessToken, authHandler.SendVerification)
		auth.POST("/resend-verification", authHandler.ResendVerification)

		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.GET("/reset-password/validate", authHandler.ValidateResetToken)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/change-password", authMiddleware.RequireAccessToken, authHandler.ChangePassword)

		auth.POST("/oauth/exchange", authHandler.ExchangeOAuthCode)
	}

	return r
}
