package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Benseddik-Fethi/petcare-app/internal/audit"
	"github.com/Benseddik-Fethi/petcare-app/internal/config"
	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
	"github.com/Benseddik-Fethi/petcare-app/internal/notify"
	"github.com/Benseddik-Fethi/petcare-app/internal/password"
	"github.com/Benseddik-Fethi/petcare-app/internal/repository"
	"github.com/Benseddik-Fethi/petcare-app/internal/service"
	"github.com/Benseddik-Fethi/petcare-app/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() config.Config {
	return config.Config{
		AccessTokenTTL:       time.Minute,
		RefreshTokenTTL:      time.Hour,
		VerificationTokenTTL: time.Hour,
		ResetTokenTTL:        time.Hour,
		OAuthCodeTTL:         30 * time.Second,
		LockoutMaxAttempts:   3,
		LockoutDuration:      15 * time.Minute,
		FrontendURL:          "http://localhost:5173",
	}
}

type fixture struct {
	cfg      config.Config
	users    *memoryUserRepo
	sessions *memorySessionRepo
	verifs   *memoryOneTimeRepo
	resets   *memoryOneTimeRepo
	codes    *memoryCodeStore
	audits   *memoryAuditRepo
	hasher   *password.Hasher
	codec    *token.Codec
	auth     *service.AuthService
	user     *service.UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	hasher, err := password.NewHasher(password.Params{Time: 1, Memory: 64, Threads: 1})
	require.NoError(t, err)
	codec := token.NewCodec(testSecret, "petcare-api", "petcare-app", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	users := newMemoryUserRepo()
	sessions := newMemorySessionRepo()
	verifs := newMemoryOneTimeRepo()
	resets := newMemoryOneTimeRepo()
	codes := newMemoryCodeStore()
	audits := &memoryAuditRepo{}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	recorder := audit.NewRecorder(audits, node, zap.NewNop())
	notifier := notify.NewLogNotifier(zap.NewNop())

	return &fixture{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		verifs:   verifs,
		resets:   resets,
		codes:    codes,
		audits:   audits,
		hasher:   hasher,
		codec:    codec,
		auth:     service.NewAuthService(cfg, users, sessions, verifs, codes, hasher, codec, recorder, notifier, zap.NewNop()),
		user:     service.NewUserService(cfg, users, sessions, verifs, resets, hasher, codec, recorder, notifier, zap.NewNop()),
	}
}

func (f *fixture) seedUser(t *testing.T, email, pwd string) domain.User {
	t.Helper()
	hash, err := f.hasher.Hash(pwd)
	require.NoError(t, err)
	user, err := f.users.Create(context.Background(), domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Marie",
		Role:         domain.RoleOwner,
		Provider:     domain.ProviderEmail,
	})
	require.NoError(t, err)
	return user
}

var testMeta = service.RequestMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

// authWith rebuilds the auth service around swapped-in repositories while
// sharing the rest of the fixture's state.
func (f *fixture) authWith(t *testing.T, users repository.UserRepository, sessions repository.SessionRepository) *service.AuthService {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	recorder := audit.NewRecorder(f.audits, node, zap.NewNop())
	return service.NewAuthService(f.cfg, users, sessions, f.verifs, f.codes, f.hasher, f.codec, recorder, notify.NewLogNotifier(zap.NewNop()), zap.NewNop())
}

// contestedSessionRepo fires a revoke-all between a rotation's lookup and its
// claim, reproducing a logout-all landing mid-refresh.
type contestedSessionRepo struct {
	*memorySessionRepo
	userID uuid.UUID
	fired  bool
}

func (r *contestedSessionRepo) Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if !r.fired {
		r.fired = true
		_, _ = r.memorySessionRepo.RevokeAllForUser(ctx, r.userID, now)
	}
	return r.memorySessionRepo.Revoke(ctx, id, now)
}

// blindUserRepo answers every existence pre-check with "absent", forcing a
// concurrent register down to the store's unique constraint.
type blindUserRepo struct {
	*memoryUserRepo
}

func (r *blindUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return false, nil
}

func TestRegisterOpensSessionAndIssuesVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.auth.Register(ctx, service.RegisterInput{
		Email:     "Marie@Example.com",
		Password:  "correct horse",
		FirstName: "Marie",
		LastName:  "Dupont",
	}, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.False(t, resp.User.EmailVerified)
	require.Equal(t, "marie@example.com", resp.User.Email)

	require.Len(t, f.sessions.byHash, 1)
	require.Equal(t, 1, f.verifs.pendingCount())

	_, err = f.auth.Register(ctx, service.RegisterInput{Email: "marie@example.com", Password: "another pass"}, testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "invalid_request", authErr.Code)
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "marie@example.com", "correct horse")

	_, err := f.auth.Login(ctx, "marie@example.com", "wrong", testMeta)
	require.Error(t, err)
	require.Equal(t, 1, f.users.byID[user.ID].FailedLoginAttempts)

	resp, err := f.auth.Login(ctx, "marie@example.com", "correct horse", testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, 0, f.users.byID[user.ID].FailedLoginAttempts)
	require.Contains(t, f.audits.events(), domain.AuditLoginSuccess)
}

func TestLoginUnknownEmailLooksLikeBadPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Login(context.Background(), "nobody@example.com", "whatever", testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "authentication_failed", authErr.Code)
	require.Contains(t, f.audits.events(), domain.AuditLoginFailed)
}

func TestLoginLockoutThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "marie@example.com", "correct horse")

	for i := 0; i < f.cfg.LockoutMaxAttempts-1; i++ {
		_, err := f.auth.Login(ctx, user.Email, "wrong", testMeta)
		authErr := asAuthError(t, err)
		require.Equal(t, "authentication_failed", authErr.Code)
	}

	// The attempt crossing the threshold arms the window.
	_, err := f.auth.Login(ctx, user.Email, "wrong", testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "authentication_failed", authErr.Code)
	require.NotNil(t, f.users.byID[user.ID].LockedUntil)
	require.Contains(t, f.audits.events(), domain.AuditAccountLocked)

	// A correct password does not bypass the active window.
	_, err = f.auth.Login(ctx, user.Email, "correct horse", testMeta)
	authErr = asAuthError(t, err)
	require.Equal(t, "account_locked", authErr.Code)
	require.NotNil(t, authErr.LockedUntil)

	// More wrong passwords keep counting but never extend the window.
	armedUntil := *f.users.byID[user.ID].LockedUntil
	_, err = f.auth.Login(ctx, user.Email, "wrong", testMeta)
	authErr = asAuthError(t, err)
	require.Equal(t, "account_locked", authErr.Code)
	require.Equal(t, armedUntil, *f.users.byID[user.ID].LockedUntil)
}

func TestLoginAfterLockoutWindowExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "marie@example.com", "correct horse")

	past := time.Now().UTC().Add(-time.Minute)
	stored := f.users.byID[user.ID]
	stored.FailedLoginAttempts = f.cfg.LockoutMaxAttempts
	stored.LockedUntil = &past
	f.users.byID[user.ID] = stored

	resp, err := f.auth.Login(ctx, user.Email, "correct horse", testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, 0, f.users.byID[user.ID].FailedLoginAttempts)
	require.Nil(t, f.users.byID[user.ID].LockedUntil)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "marie@example.com", "correct horse")

	first, err := f.auth.Login(ctx, "marie@example.com", "correct horse", testMeta)
	require.NoError(t, err)

	second, err := f.auth.Refresh(ctx, first.RefreshToken, testMeta)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEmpty(t, second.AccessToken)

	// The rotated-out token is dead.
	_, err = f.auth.Refresh(ctx, first.RefreshToken, testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "authentication_failed", authErr.Code)

	// The replacement still works.
	_, err = f.auth.Refresh(ctx, second.RefreshToken, testMeta)
	require.NoError(t, err)
}

func TestRefreshFailsWhenRevokeAllLandsFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "marie@example.com", "correct horse")

	resp, err := f.auth.Login(ctx, user.Email, "correct horse", testMeta)
	require.NoError(t, err)

	contested := &contestedSessionRepo{memorySessionRepo: f.sessions, userID: user.ID}
	auth := f.authWith(t, f.users, contested)

	_, err = auth.Refresh(ctx, resp.RefreshToken, testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "authentication_failed", authErr.Code)

	// The interrupted rotation must not leave a fresh lineage behind.
	require.Equal(t, 0, f.sessions.liveCount(user.ID, time.Now().UTC()))
}

func TestRegisterDuplicateEmailLosingInsertRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "marie@example.com", "correct horse")

	// The pre-check sees no account, so the insert itself must arbitrate.
	auth := f.authWith(t, &blindUserRepo{memoryUserRepo: f.users}, f.sessions)

	_, err := auth.Register(ctx, service.RegisterInput{Email: "marie@example.com", Password: "another pass"}, testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "invalid_request", authErr.Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "marie@example.com", "correct horse")

	resp, err := f.auth.Login(ctx, "marie@example.com", "correct horse", testMeta)
	require.NoError(t, err)

	_, err = f.auth.Refresh(ctx, resp.AccessToken, testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "authentication_failed", authErr.Code)
}

func TestLogoutIsSilentForUnknownToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.auth.Logout(ctx, "", testMeta))
	require.NoError(t, f.auth.Logout(ctx, "not-a-real-token", testMeta))
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "marie@example.com", "correct horse")

	resp, err := f.auth.Login(ctx, "marie@example.com", "correct horse", testMeta)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, resp.RefreshToken, testMeta))

	_, err = f.auth.Refresh(ctx, resp.RefreshToken, testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "authentication_failed", authErr.Code)
	require.Contains(t, f.audits.events(), domain.AuditLogout)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "marie@example.com", "correct horse")

	first, err := f.auth.Login(ctx, "marie@example.com", "correct horse", testMeta)
	require.NoError(t, err)
	second, err := f.auth.Login(ctx, "marie@example.com", "correct horse", testMeta)
	require.NoError(t, err)

	count, err := f.auth.LogoutAll(ctx, user.ID, testMeta)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	_, err = f.auth.Refresh(ctx, first.RefreshToken, testMeta)
	require.Error(t, err)
	_, err = f.auth.Refresh(ctx, second.RefreshToken, testMeta)
	require.Error(t, err)
}

func TestOAuthCodeExchangeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "marie@example.com", "correct horse")

	code, err := f.auth.CreateAuthorizationCode(ctx, user, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	resp, err := f.auth.ExchangeOAuthCode(ctx, code, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, user.ID.String(), resp.User.ID)

	// The pair was parked with a live session, so refresh works.
	_, err = f.auth.Refresh(ctx, resp.RefreshToken, testMeta)
	require.NoError(t, err)

	_, err = f.auth.ExchangeOAuthCode(ctx, code, testMeta)
	authErr := asAuthError(t, err)
	require.Equal(t, "authentication_failed", authErr.Code)
}

func asAuthError(t *testing.T, err error) *service.AuthError {
	t.Helper()
	require.Error(t, err)
	authErr, ok := err.(*service.AuthError)
	require.True(t, ok, "expected *service.AuthError, got %T: %v", err, err)
	return authErr
}

// In-memory fakes mirroring the store-side semantics of the Postgres repos.

type memoryUserRepo struct {
	byID    map[uuid.UUID]domain.User
	byEmail map[string]uuid.UUID
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byID: make(map[uuid.UUID]domain.User), byEmail: make(map[string]uuid.UUID)}
}

func (m *memoryUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.byID[id], nil
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *memoryUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, ok := m.byEmail[email]
	return ok, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if _, ok := m.byEmail[user.Email]; ok {
		return domain.User{}, repository.ErrDuplicateEmail
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return user, nil
}

func (m *memoryUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = hash
	m.byID[id] = user
	return nil
}

func (m *memoryUserRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerified = true
	m.byID[id] = user
	return nil
}

func (m *memoryUserRepo) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockDuration time.Duration, now time.Time) (bool, error) {
	user, ok := m.byID[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	user.FailedLoginAttempts++
	armed := false
	if user.FailedLoginAttempts >= maxAttempts && (user.LockedUntil == nil || !user.LockedUntil.After(now)) {
		until := now.Add(lockDuration)
		user.LockedUntil = &until
		armed = true
	}
	m.byID[id] = user
	return armed, nil
}

func (m *memoryUserRepo) ResetLoginFailures(ctx context.Context, id uuid.UUID) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	m.byID[id] = user
	return nil
}

type memorySessionRepo struct {
	byHash map[string]domain.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{byHash: make(map[string]domain.Session)}
}

func (m *memorySessionRepo) Create(ctx context.Context, session domain.Session) error {
	m.byHash[session.RefreshTokenHash] = session
	return nil
}

func (m *memorySessionRepo) FindValidByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.Session, error) {
	session, ok := m.byHash[tokenHash]
	if !ok || !session.Valid(now) {
		return domain.Session{}, pgx.ErrNoRows
	}
	return session, nil
}

func (m *memorySessionRepo) Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	claimed := false
	for hash, session := range m.byHash {
		if session.ID == id && !session.Revoked {
			session.Revoked = true
			session.RevokedAt = &now
			m.byHash[hash] = session
			claimed = true
		}
	}
	return claimed, nil
}

func (m *memorySessionRepo) liveCount(userID uuid.UUID, now time.Time) int {
	count := 0
	for _, session := range m.byHash {
		if session.UserID == userID && session.Valid(now) {
			count++
		}
	}
	return count
}

func (m *memorySessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	for hash, session := range m.byHash {
		if session.UserID == userID && !session.Revoked {
			session.Revoked = true
			session.RevokedAt = &now
			m.byHash[hash] = session
			count++
		}
	}
	return count, nil
}

type memoryOneTimeRepo struct {
	byHash map[string]domain.OneTimeToken
}

func newMemoryOneTimeRepo() *memoryOneTimeRepo {
	return &memoryOneTimeRepo{byHash: make(map[string]domain.OneTimeToken)}
}

func (m *memoryOneTimeRepo) Create(ctx context.Context, token domain.OneTimeToken) error {
	m.byHash[token.TokenHash] = token
	return nil
}

func (m *memoryOneTimeRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (domain.OneTimeToken, error) {
	token, ok := m.byHash[tokenHash]
	if !ok || !token.Pending(now) {
		return domain.OneTimeToken{}, pgx.ErrNoRows
	}
	token.Used = true
	token.UsedAt = &now
	m.byHash[tokenHash] = token
	return token, nil
}

func (m *memoryOneTimeRepo) FindPendingByHash(ctx context.Context, tokenHash string, now time.Time) (domain.OneTimeToken, error) {
	token, ok := m.byHash[tokenHash]
	if !ok || !token.Pending(now) {
		return domain.OneTimeToken{}, pgx.ErrNoRows
	}
	return token, nil
}

func (m *memoryOneTimeRepo) InvalidateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error {
	for hash, token := range m.byHash {
		if token.UserID == userID && !token.Used {
			token.Used = true
			token.UsedAt = &now
			m.byHash[hash] = token
		}
	}
	return nil
}

func (m *memoryOneTimeRepo) pendingCount() int {
	count := 0
	now := time.Now().UTC()
	for _, token := range m.byHash {
		if token.Pending(now) {
			count++
		}
	}
	return count
}

type memoryCodeStore struct {
	codes map[string]codeEntry
}

type codeEntry struct {
	data      domain.AuthorizationCode
	expiresAt time.Time
}

func newMemoryCodeStore() *memoryCodeStore {
	return &memoryCodeStore{codes: make(map[string]codeEntry)}
}

func (m *memoryCodeStore) Save(ctx context.Context, code string, data domain.AuthorizationCode, ttl time.Duration) error {
	m.codes[code] = codeEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *memoryCodeStore) Consume(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	entry, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	delete(m.codes, code)
	if time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	data := entry.data
	return &data, nil
}

type memoryAuditRepo struct {
	entries []domain.AuditLog
}

func (m *memoryAuditRepo) Append(ctx context.Context, entry domain.AuditLog) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAuditRepo) events() []string {
	out := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.Event)
	}
	return out
}
