package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() domain.User {
	return domain.User{ID: uuid.New(), Email: "marie@example.com", Role: domain.RoleOwner}
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	codec := NewCodec(testSecret, "petcare-api", "petcare-app", time.Minute, time.Hour)
	user := testUser()

	raw, err := codec.Issue(user, ClassAccess)
	require.NoError(t, err)

	claims, err := codec.Validate(raw)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, domain.RoleOwner, claims.Role)
	require.Equal(t, ClassAccess, claims.Class)
}

func TestRefreshTokenCarriesNoRole(t *testing.T) {
	codec := NewCodec(testSecret, "petcare-api", "petcare-app", time.Minute, time.Hour)

	raw, err := codec.Issue(testUser(), ClassRefresh)
	require.NoError(t, err)

	claims, err := codec.Validate(raw)
	require.NoError(t, err)
	require.Equal(t, ClassRefresh, claims.Class)
	require.Empty(t, claims.Role)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	codec := NewCodec(testSecret, "petcare-api", "petcare-app", time.Minute, time.Hour)
	other := NewCodec("another-secret-another-secret-xx", "petcare-api", "petcare-app", time.Minute, time.Hour)

	raw, err := other.Issue(testUser(), ClassAccess)
	require.NoError(t, err)

	_, err = codec.Validate(raw)
	require.ErrorIs(t, err, ErrSignature)
}

func TestValidateRejectsGarbage(t *testing.T) {
	codec := NewCodec(testSecret, "petcare-api", "petcare-app", time.Minute, time.Hour)

	_, err := codec.Validate("not.a.jwt")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	codec := NewCodec(testSecret, "petcare-api", "petcare-app", time.Minute, time.Hour)
	issuedAt := time.Now().UTC()
	codec.now = func() time.Time { return issuedAt }

	raw, err := codec.Issue(testUser(), ClassAccess)
	require.NoError(t, err)

	codec.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = codec.Validate(raw)
	require.ErrorIs(t, err, ErrExpired)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	codec := NewCodec(testSecret, "petcare-api", "petcare-app", time.Minute, time.Hour)
	other := NewCodec(testSecret, "someone-else", "petcare-app", time.Minute, time.Hour)

	raw, err := other.Issue(testUser(), ClassAccess)
	require.NoError(t, err)

	_, err = codec.Validate(raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestHashIsDeterministicAndOpaque(t *testing.T) {
	codec := NewCodec(testSecret, "petcare-api", "petcare-app", time.Minute, time.Hour)

	first := codec.Hash("some-token")
	second := codec.Hash("some-token")
	require.Equal(t, first, second)
	require.Len(t, first, 64)
	require.NotEqual(t, first, codec.Hash("other-token"))
}
