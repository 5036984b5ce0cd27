package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Benseddik-Fethi/petcare-app/internal/config"
	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
	"github.com/Benseddik-Fethi/petcare-app/internal/password"
	"github.com/Benseddik-Fethi/petcare-app/internal/repository"
)

// EnsureAdmin seeds the configured admin account on startup. It is a no-op
// when no admin credentials are configured or the account already exists.
func EnsureAdmin(cfg config.Config, users repository.UserRepository, hasher *password.Hasher, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := users.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check admin account: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	if _, err := users.Create(ctx, domain.User{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  hash,
		FirstName:     "Admin",
		Role:          domain.RoleAdmin,
		Provider:      domain.ProviderEmail,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}

	logger.Info("admin account created", zap.String("email", email))
	return nil
}
