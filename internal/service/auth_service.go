package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
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

// AuthService orchestrates registration, credential login, refresh rotation,
// logout and the OAuth code exchange. It owns the invariant that every
// response carrying tokens has a matching session row behind it.
type AuthService struct {
	cfg      config.Config
	users    repository.UserRepository
	sessions repository.SessionRepository
	verifs   repository.OneTimeTokenRepository
	codes    repository.CodeStore
	hasher   *password.Hasher
	codec    *token.Codec
	recorder *audit.Recorder
	notifier notify.Notifier
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewAuthService wires the orchestrator.
func NewAuthService(
	cfg config.Config,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifs repository.OneTimeTokenRepository,
	codes repository.CodeStore,
	hasher *password.Hasher,
	codec *token.Codec,
	recorder *audit.Recorder,
	notifier notify.Notifier,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.L()
	}
	return &AuthService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		verifs:   verifs,
		codes:    codes,
		hasher:   hasher,
		codec:    codec,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("service/auth"),
		now:      time.Now,
	}
}

// Register creates an unverified account, emails a verification link and
// opens a first session. Duplicate emails are rejected up front.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (AuthTokens, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	email := normalizeEmail(in.Email)
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return AuthTokens{}, newBadRequest(msgEmailTaken)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user, err := s.users.Create(ctx, domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         domain.RoleOwner,
		Provider:     domain.ProviderEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// The existence pre-check raced a concurrent register; the store
		// unique constraint is the arbiter.
		return AuthTokens{}, newBadRequest(msgEmailTaken)
	}
	if err != nil {
		return AuthTokens{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn("verification token issue failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return s.openSession(ctx, user, meta)
}

// Login verifies credentials with a constant hashing cost across outcomes,
// applies lockout bookkeeping and opens a session on success.
func (s *AuthService) Login(ctx context.Context, email, pwd string, meta RequestMeta) (AuthTokens, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email = normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown email burns the same hashing cost as a real mismatch.
		s.hasher.VerifyDecoy(pwd)
		s.recorder.Record(ctx, domain.LoginFailed(nil, email, meta.IPAddress, meta.UserAgent, "user_not_found"))
		return AuthTokens{}, newAuthFailed(msgInvalidCredentials)
	}
	if err != nil {
		return AuthTokens{}, fmt.Errorf("load user: %w", err)
	}

	if user.PasswordHash == "" {
		// Externally provisioned account with no local password.
		s.hasher.VerifyDecoy(pwd)
		s.recorder.Record(ctx, domain.LoginFailed(&user.ID, email, meta.IPAddress, meta.UserAgent, "no_local_password"))
		return AuthTokens{}, newAuthFailed(msgInvalidCredentials)
	}

	matches, err := s.hasher.Verify(pwd, user.PasswordHash)
	if err != nil {
		matches = false
	}

	now := s.now().UTC()
	if user.Locked(now) {
		// A correct password does not bypass an active window, and a wrong
		// one keeps counting without extending it.
		if !matches {
			if _, err := s.users.RecordLoginFailure(ctx, user.ID, s.cfg.LockoutMaxAttempts, s.cfg.LockoutDuration, now); err != nil {
				return AuthTokens{}, fmt.Errorf("record login failure: %w", err)
			}
		}
		s.recorder.Record(ctx, domain.LoginFailed(&user.ID, email, meta.IPAddress, meta.UserAgent, "account_locked"))
		return AuthTokens{}, newAccountLocked(*user.LockedUntil)
	}

	if !matches {
		armed, err := s.users.RecordLoginFailure(ctx, user.ID, s.cfg.LockoutMaxAttempts, s.cfg.LockoutDuration, now)
		if err != nil {
			return AuthTokens{}, fmt.Errorf("record login failure: %w", err)
		}
		s.recorder.Record(ctx, domain.LoginFailed(&user.ID, email, meta.IPAddress, meta.UserAgent, "invalid_password"))
		if armed {
			s.recorder.Record(ctx, domain.AccountLocked(user, meta.IPAddress))
		}
		return AuthTokens{}, newAuthFailed(msgInvalidCredentials)
	}

	if err := s.users.ResetLoginFailures(ctx, user.ID); err != nil {
		return AuthTokens{}, fmt.Errorf("reset login failures: %w", err)
	}
	s.recorder.Record(ctx, domain.LoginSuccess(user, meta.IPAddress, meta.UserAgent))

	return s.openSession(ctx, user, meta)
}

// Refresh rotates a refresh token: the presented session is revoked and a
// fresh pair with a new session is issued. A replayed token fails here
// because the old session is no longer valid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (AuthTokens, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	claims, err := s.codec.Validate(refreshToken)
	if err != nil {
		return AuthTokens{}, newAuthFailed(msgInvalidToken)
	}
	if claims.Class != token.ClassRefresh {
		return AuthTokens{}, newAuthFailed(msgInvalidToken)
	}

	now := s.now().UTC()
	session, err := s.sessions.FindValidByTokenHash(ctx, s.codec.Hash(refreshToken), now)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthTokens{}, newAuthFailed(msgInvalidToken)
	}
	if err != nil {
		return AuthTokens{}, fmt.Errorf("load session: %w", err)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthTokens{}, newAuthFailed(msgInvalidToken)
	}
	if err != nil {
		return AuthTokens{}, fmt.Errorf("load user: %w", err)
	}

	claimed, err := s.sessions.Revoke(ctx, session.ID, now)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("revoke session: %w", err)
	}
	if !claimed {
		// A revoke-all or a second rotation of the same token landed
		// between the lookup and the claim. The lineage is dead; no new
		// session may be spawned from it.
		return AuthTokens{}, newAuthFailed(msgInvalidToken)
	}

	return s.openSession(ctx, user, meta)
}

// Logout revokes the session behind the presented refresh token. Missing,
// unknown or already revoked tokens are a silent no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, meta RequestMeta) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if refreshToken == "" {
		return nil
	}

	now := s.now().UTC()
	session, err := s.sessions.FindValidByTokenHash(ctx, s.codec.Hash(refreshToken), now)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	claimed, err := s.sessions.Revoke(ctx, session.ID, now)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if !claimed {
		return nil
	}

	if user, err := s.users.GetByID(ctx, session.UserID); err == nil {
		s.recorder.Record(ctx, domain.Logout(user, meta.IPAddress))
	}
	return nil
}

// LogoutAll revokes every active session of the authenticated user and
// returns how many were closed. The subject always comes from the verified
// access token, never from the request body.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, meta RequestMeta) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.LogoutAll",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	count, err := s.sessions.RevokeAllForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	if user, err := s.users.GetByID(ctx, userID); err == nil {
		entry := domain.Logout(user, meta.IPAddress)
		entry.Event = domain.AuditLogoutAll
		entry.Detail = strconv.FormatInt(count, 10)
		s.recorder.Record(ctx, entry)
	}
	return count, nil
}

// CreateAuthorizationCode issues a token pair with its session now, parks it
// under a short-lived opaque code and returns the code for the callback
// redirect. Token lifetimes start here, not at exchange.
func (s *AuthService) CreateAuthorizationCode(ctx context.Context, user domain.User, meta RequestMeta) (string, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.CreateAuthorizationCode")
	defer span.End()

	tokens, err := s.openSession(ctx, user, meta)
	if err != nil {
		return "", err
	}

	code, err := newOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	data := domain.AuthorizationCode{
		UserID:       user.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.codes.Save(ctx, code, data, s.cfg.OAuthCodeTTL); err != nil {
		return "", fmt.Errorf("save code: %w", err)
	}
	return code, nil
}

// ExchangeOAuthCode swaps a one-time authorization code for the token pair
// parked under it. A second exchange of the same code fails.
func (s *AuthService) ExchangeOAuthCode(ctx context.Context, code string, meta RequestMeta) (AuthTokens, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ExchangeOAuthCode")
	defer span.End()

	if code == "" {
		return AuthTokens{}, newBadRequest("code manquant")
	}

	data, err := s.codes.Consume(ctx, code)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("consume code: %w", err)
	}
	if data == nil {
		return AuthTokens{}, newAuthFailed(msgInvalidToken)
	}

	user, err := s.users.GetByID(ctx, data.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthTokens{}, newAuthFailed(msgInvalidToken)
	}
	if err != nil {
		return AuthTokens{}, fmt.Errorf("load user: %w", err)
	}

	entry := domain.LoginSuccess(user, meta.IPAddress, meta.UserAgent)
	entry.Event = domain.AuditOAuthExchange
	s.recorder.Record(ctx, entry)

	return AuthTokens{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		User:         newUserView(user),
	}, nil
}

// CurrentUser returns the view of the authenticated user.
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (UserView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserView{}, newNotFound("Utilisateur introuvable")
	}
	if err != nil {
		return UserView{}, fmt.Errorf("load user: %w", err)
	}
	return newUserView(user), nil
}

// openSession issues an access and refresh pair and records the session row
// keyed by the refresh-token digest.
func (s *AuthService) openSession(ctx context.Context, user domain.User, meta RequestMeta) (AuthTokens, error) {
	access, err := s.codec.Issue(user, token.ClassAccess)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(user, token.ClassRefresh)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("issue refresh token: %w", err)
	}

	now := s.now().UTC()
	session := domain.Session{
		ID:               uuid.New(),
		UserID:           user.ID,
		RefreshTokenHash: s.codec.Hash(refresh),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthTokens{}, fmt.Errorf("create session: %w", err)
	}

	return AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		User:         newUserView(user),
	}, nil
}

// sendVerification invalidates earlier verification tokens and emails a new
// link. The raw token only travels in the link; the store keeps its digest.
func (s *AuthService) sendVerification(ctx context.Context, user domain.User) error {
	now := s.now().UTC()
	if err := s.verifs.InvalidateAllForUser(ctx, user.ID, now); err != nil {
		return fmt.Errorf("invalidate verification tokens: %w", err)
	}

	raw, err := newOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	record := domain.OneTimeToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: s.codec.Hash(raw),
		ExpiresAt: now.Add(s.cfg.VerificationTokenTTL),
		CreatedAt: now,
	}
	if err := s.verifs.Create(ctx, record); err != nil {
		return fmt.Errorf("create verification token: %w", err)
	}

	link := s.cfg.FrontendURL + "/auth/verify-email?token=" + raw
	go s.notifier.SendVerificationEmail(context.WithoutCancel(ctx), user.Email, user.DisplayName(), link)
	return nil
}

// newOpaqueToken returns a url-safe random value for one-time tokens and
// authorization codes.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
