package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
)

const pgUniqueViolation = "23505"

// Compile-time interface assertions.
var (
	_ UserRepository         = (*PostgresUserRepo)(nil)
	_ SessionRepository      = (*PostgresSessionRepo)(nil)
	_ OneTimeTokenRepository = (*PostgresOneTimeTokenRepo)(nil)
	_ AuditLogRepository     = (*PostgresAuditLogRepo)(nil)
)

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, provider, email_verified, failed_login_attempts, locked_until, created_at, updated_at`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

const insertUserSQL = `INSERT INTO users (id, email, password_hash, first_name, last_name, role, provider, email_verified)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Provider,
		user.EmailVerified,
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.User{}, ErrDuplicateEmail
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET email_verified = true, updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// Counter increment and lockout arming happen in one statement so two
// concurrent failures cannot both observe a pre-threshold counter. An
// active window is never extended; a past one can be re-armed.
const recordLoginFailureSQL = `
UPDATE users
SET failed_login_attempts = failed_login_attempts + 1,
    locked_until = CASE
        WHEN failed_login_attempts + 1 >= $2 AND (locked_until IS NULL OR locked_until <= $4)
        THEN $3
        ELSE locked_until
    END,
    updated_at = $4
WHERE id = $1
RETURNING locked_until`

func (r *PostgresUserRepo) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockDuration time.Duration, now time.Time) (bool, error) {
	lockUntil := now.Add(lockDuration)
	var lockedUntil *time.Time
	if err := r.db.QueryRow(ctx, recordLoginFailureSQL, id, maxAttempts, lockUntil, now).Scan(&lockedUntil); err != nil {
		return false, fmt.Errorf("record login failure: %w", err)
	}
	armed := lockedUntil != nil && lockedUntil.Equal(lockUntil)
	return armed, nil
}

func (r *PostgresUserRepo) ResetLoginFailures(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}

// PostgresSessionRepo implements SessionRepository.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

const sessionColumns = `id, user_id, refresh_token_hash, ip_address, user_agent, created_at, expires_at, revoked, revoked_at`

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) error {
	const query = `INSERT INTO sessions (id, user_id, refresh_token_hash, ip_address, user_agent, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.RefreshTokenHash,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) FindValidByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1 AND revoked = false AND expires_at > $2`
	session, err := scanSession(r.db.QueryRow(ctx, query, tokenHash, now))
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

// Revoke claims the session row with a compare-and-set on the revoked flag.
// The row count tells the caller whether it won against a concurrent
// revoke-all or a second rotation of the same token.
func (r *PostgresSessionRepo) Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const query = `UPDATE sessions SET revoked = true, revoked_at = $2 WHERE id = $1 AND revoked = false`
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	const query = `UPDATE sessions SET revoked = true, revoked_at = $2 WHERE user_id = $1 AND revoked = false`
	tag, err := r.db.Exec(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresOneTimeTokenRepo implements OneTimeTokenRepository over one of the
// single-use token tables.
type PostgresOneTimeTokenRepo struct {
	db    *pgxpool.Pool
	table string
}

// NewPostgresVerificationTokenRepo stores email-verification tokens.
func NewPostgresVerificationTokenRepo(pool *pgxpool.Pool) *PostgresOneTimeTokenRepo {
	return &PostgresOneTimeTokenRepo{db: pool, table: "verification_tokens"}
}

// NewPostgresResetTokenRepo stores password-reset tokens.
func NewPostgresResetTokenRepo(pool *pgxpool.Pool) *PostgresOneTimeTokenRepo {
	return &PostgresOneTimeTokenRepo{db: pool, table: "password_reset_tokens"}
}

const oneTimeColumns = `id, user_id, token_hash, expires_at, used, used_at, created_at`

func (r *PostgresOneTimeTokenRepo) Create(ctx context.Context, token domain.OneTimeToken) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`, r.table)
	if _, err := r.db.Exec(ctx, query, token.ID, token.UserID, token.TokenHash, token.ExpiresAt); err != nil {
		return fmt.Errorf("create one-time token: %w", err)
	}
	return nil
}

// Consume claims the token with a compare-and-set on the used flag. Under
// concurrent redemption exactly one caller gets the row back; the rest see
// no rows.
func (r *PostgresOneTimeTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (domain.OneTimeToken, error) {
	query := fmt.Sprintf(`UPDATE %s SET used = true, used_at = $2 WHERE token_hash = $1 AND used = false AND expires_at > $2 RETURNING `+oneTimeColumns, r.table)
	token, err := scanOneTimeToken(r.db.QueryRow(ctx, query, tokenHash, now))
	if err != nil {
		return domain.OneTimeToken{}, fmt.Errorf("consume one-time token: %w", err)
	}
	return token, nil
}

func (r *PostgresOneTimeTokenRepo) FindPendingByHash(ctx context.Context, tokenHash string, now time.Time) (domain.OneTimeToken, error) {
	query := fmt.Sprintf(`SELECT `+oneTimeColumns+` FROM %s WHERE token_hash = $1 AND used = false AND expires_at > $2`, r.table)
	token, err := scanOneTimeToken(r.db.QueryRow(ctx, query, tokenHash, now))
	if err != nil {
		return domain.OneTimeToken{}, fmt.Errorf("find one-time token: %w", err)
	}
	return token, nil
}

func (r *PostgresOneTimeTokenRepo) InvalidateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET used = true, used_at = $2 WHERE user_id = $1 AND used = false`, r.table)
	if _, err := r.db.Exec(ctx, query, userID, now); err != nil {
		return fmt.Errorf("invalidate one-time tokens: %w", err)
	}
	return nil
}

// PostgresAuditLogRepo implements AuditLogRepository.
type PostgresAuditLogRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAuditLogRepo(pool *pgxpool.Pool) *PostgresAuditLogRepo {
	return &PostgresAuditLogRepo{db: pool}
}

func (r *PostgresAuditLogRepo) Append(ctx context.Context, entry domain.AuditLog) error {
	const query = `INSERT INTO audit_logs (id, event, user_id, email, ip_address, user_agent, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.Event,
		entry.UserID,
		entry.Email,
		entry.IPAddress,
		entry.UserAgent,
		entry.Detail,
	); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.Provider,
		&u.EmailVerified,
		&u.FailedLoginAttempts,
		&u.LockedUntil,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func scanSession(row rowScanner) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshTokenHash,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.Revoked,
		&s.RevokedAt,
	)
	return s, err
}

func scanOneTimeToken(row rowScanner) (domain.OneTimeToken, error) {
	var t domain.OneTimeToken
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.Used,
		&t.UsedAt,
		&t.CreatedAt,
	)
	return t, err
}
