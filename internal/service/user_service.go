package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Benseddik-Fethi/petcare-app/internal/audit"
	"github.com/Benseddik-Fethi/petcare-app/internal/config"
	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
	"github.com/Benseddik-Fethi/petcare-app/internal/notify"
	"github.com/Benseddik-Fethi/petcare-app/internal/password"
	"github.com/Benseddik-Fethi/petcare-app/internal/repository"
	"github.com/Benseddik-Fethi/petcare-app/internal/token"
)

// UserService covers account lifecycle outside the session flows: email
// verification and the two password-change paths. Flows reachable without
// authentication answer the same way whether or not the email exists.
type UserService struct {
	cfg      config.Config
	users    repository.UserRepository
	sessions repository.SessionRepository
	verifs   repository.OneTimeTokenRepository
	resets   repository.OneTimeTokenRepository
	hasher   *password.Hasher
	codec    *token.Codec
	recorder *audit.Recorder
	notifier notify.Notifier
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewUserService wires the account-lifecycle service.
func NewUserService(
	cfg config.Config,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifs repository.OneTimeTokenRepository,
	resets repository.OneTimeTokenRepository,
	hasher *password.Hasher,
	codec *token.Codec,
	recorder *audit.Recorder,
	notifier notify.Notifier,
	logger *zap.Logger,
) *UserService {
	if logger == nil {
		logger = zap.L()
	}
	return &UserService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		verifs:   verifs,
		resets:   resets,
		hasher:   hasher,
		codec:    codec,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("service/user"),
		now:      time.Now,
	}
}

// VerifyEmail consumes a verification token and marks the account verified.
// It reports false for unknown, expired or already used tokens.
func (s *UserService) VerifyEmail(ctx context.Context, rawToken string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.VerifyEmail")
	defer span.End()

	if rawToken == "" {
		return false, nil
	}

	now := s.now().UTC()
	record, err := s.verifs.Consume(ctx, s.codec.Hash(rawToken), now)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume verification token: %w", err)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if !user.EmailVerified {
		if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
			return false, fmt.Errorf("mark verified: %w", err)
		}
		id := user.ID
		s.recorder.Record(ctx, domain.AuditLog{Event: domain.AuditEmailVerified, UserID: &id, Email: user.Email})
		go s.notifier.SendWelcomeEmail(context.WithoutCancel(ctx), user.Email, user.DisplayName())
	}
	return true, nil
}

// SendVerificationEmail issues a verification link for a known user id. It
// is a no-op for already verified accounts.
func (s *UserService) SendVerificationEmail(ctx context.Context, userID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "UserService.SendVerificationEmail")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return newNotFound("Utilisateur introuvable")
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.EmailVerified {
		return nil
	}

	raw, err := s.issueOneTime(ctx, s.verifs, user.ID, s.cfg.VerificationTokenTTL)
	if err != nil {
		return err
	}
	link := s.cfg.FrontendURL + "/auth/verify-email?token=" + raw
	go s.notifier.SendVerificationEmail(context.WithoutCancel(ctx), user.Email, user.DisplayName(), link)
	return nil
}

// ResendVerificationEmail issues a fresh verification link. The response is
// identical whether the email is unknown or already verified.
func (s *UserService) ResendVerificationEmail(ctx context.Context, email string) error {
	ctx, span := s.tracer.Start(ctx, "UserService.ResendVerificationEmail")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.EmailVerified {
		return nil
	}

	raw, err := s.issueOneTime(ctx, s.verifs, user.ID, s.cfg.VerificationTokenTTL)
	if err != nil {
		return err
	}
	link := s.cfg.FrontendURL + "/auth/verify-email?token=" + raw
	go s.notifier.SendVerificationEmail(context.WithoutCancel(ctx), user.Email, user.DisplayName(), link)
	return nil
}

// ForgotPassword starts the reset flow. Unknown emails get the same answer
// as known ones; a new token invalidates any earlier pending one.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := s.tracer.Start(ctx, "UserService.ForgotPassword")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	raw, err := s.issueOneTime(ctx, s.resets, user.ID, s.cfg.ResetTokenTTL)
	if err != nil {
		return err
	}
	link := s.cfg.FrontendURL + "/auth/reset-password?token=" + raw
	go s.notifier.SendPasswordResetEmail(context.WithoutCancel(ctx), user.Email, user.DisplayName(), link)
	return nil
}

// ValidateResetToken reports whether a reset token is still consumable,
// without consuming it. The UI uses it to gate the reset form.
func (s *UserService) ValidateResetToken(ctx context.Context, rawToken string) (bool, error) {
	if rawToken == "" {
		return false, nil
	}
	_, err := s.resets.FindPendingByHash(ctx, s.codec.Hash(rawToken), s.now().UTC())
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find reset token: %w", err)
	}
	return true, nil
}

// ResetPassword consumes a reset token, replaces the password and revokes
// every active session of the account.
func (s *UserService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	ctx, span := s.tracer.Start(ctx, "UserService.ResetPassword")
	defer span.End()

	now := s.now().UTC()
	record, err := s.resets.Consume(ctx, s.codec.Hash(rawToken), now)
	if errors.Is(err, pgx.ErrNoRows) {
		return newBadRequest(msgInvalidToken)
	}
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if _, err := s.sessions.RevokeAllForUser(ctx, user.ID, now); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.recorder.Record(ctx, domain.PasswordChanged(user, "password_reset"))
	go s.notifier.SendPasswordChangedEmail(context.WithoutCancel(ctx), user.Email, user.DisplayName())
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one. Existing sessions stay open.
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	ctx, span := s.tracer.Start(ctx, "UserService.ChangePassword")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	matches, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil || !matches {
		return newBadRequest(msgWrongPassword)
	}
	if current == next {
		return newBadRequest(msgSamePassword)
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.recorder.Record(ctx, domain.PasswordChanged(user, "user_change"))
	go s.notifier.SendPasswordChangedEmail(context.WithoutCancel(ctx), user.Email, user.DisplayName())
	return nil
}

// issueOneTime invalidates the user's pending tokens in the given store and
// creates a fresh one, returning the raw value.
func (s *UserService) issueOneTime(ctx context.Context, store repository.OneTimeTokenRepository, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	if err := store.InvalidateAllForUser(ctx, userID, now); err != nil {
		return "", fmt.Errorf("invalidate tokens: %w", err)
	}

	raw, err := newOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	record := domain.OneTimeToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: s.codec.Hash(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := store.Create(ctx, record); err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	return raw, nil
}
