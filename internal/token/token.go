package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
)

// Class distinguishes the two token kinds issued from the same signer. A
// refresh token must never be accepted where an access token is expected,
// and vice versa.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

// Validation outcomes.
var (
	ErrMalformed = errors.New("token malformed")
	ErrSignature = errors.New("token signature mismatch")
	ErrExpired   = errors.New("token expired")
)

// Claims is the decoded payload of a valid token.
type Claims struct {
	UserID    uuid.UUID
	Role      string
	Class     Class
	ExpiresAt time.Time
}

type customClaims struct {
	Role     string `json:"role,omitempty"`
	TokenUse string `json:"token_use"`
}

// Codec signs and validates bearer tokens and produces the digest used for
// store-side comparison of refresh tokens.
type Codec struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec builds a Codec around a single HS256 secret.
func NewCodec(secret, issuer, audience string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a token of the requested class for the user.
func (c *Codec) Issue(user domain.User, class Class) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: c.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	ttl := c.accessTTL
	if class == ClassRefresh {
		ttl = c.refreshTTL
	}

	now := c.now().UTC()
	std := gojwt.Claims{
		ID:        uuid.NewString(),
		Subject:   user.ID.String(),
		Issuer:    c.issuer,
		Audience:  gojwt.Audience{c.audience},
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := customClaims{TokenUse: string(class)}
	if class == ClassAccess {
		custom.Role = user.Role
	}

	raw, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return raw, nil
}

// Validate checks signature, expiry, issuer and audience, and decodes the
// claims. Failures map onto ErrMalformed, ErrSignature, or ErrExpired.
func (c *Codec) Validate(raw string) (*Claims, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, ErrMalformed
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(c.secret, &std, &custom); err != nil {
		return nil, ErrSignature
	}

	err = std.Validate(gojwt.Expected{
		Issuer:      c.issuer,
		AnyAudience: gojwt.Audience{c.audience},
		Time:        c.now().UTC(),
	})
	switch {
	case errors.Is(err, gojwt.ErrExpired):
		return nil, ErrExpired
	case err != nil:
		return nil, ErrMalformed
	}

	userID, err := uuid.Parse(std.Subject)
	if err != nil {
		return nil, ErrMalformed
	}
	class := Class(custom.TokenUse)
	if class != ClassAccess && class != ClassRefresh {
		return nil, ErrMalformed
	}

	return &Claims{
		UserID:    userID,
		Role:      custom.Role,
		Class:     class,
		ExpiresAt: std.Expiry.Time(),
	}, nil
}

// Hash returns the hex sha256 digest of a token. Raw refresh tokens are
// never persisted; sessions are keyed by this digest.
func (c *Codec) Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
