package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekeep.org/internal/ids"
)

const (
	defaultIssuer          = "gatekeep"
	defaultAccessTTL       = 1200 * time.Second
	defaultEmailConfirmTTL = 24 * time.Hour

	// refreshTokenEntropy is the number of random bytes behind an opaque
	// refresh token before URL-safe encoding.
	refreshTokenEntropy = 64
)

// Purpose tags a token with its intended use so a token minted for one
// context is never accepted in another.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeEmailConfirmation Purpose = "email_confirmation"
)

// Claims is the signed payload carried by access and email-confirmation
// tokens. Refresh tokens are opaque strings, not JWTs.
type Claims struct {
	SessionID   string  `json:"sid,omitempty"`
	Role        string  `json:"role,omitempty"`
	Purpose     Purpose `json:"purpose"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the numeric user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Subject), 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Codec mints and verifies signed tokens using a single HS256 secret.
// It holds no mutable state; methods are safe for concurrent use.
type Codec struct {
	secret          []byte
	issuer          string
	accessTTL       time.Duration
	emailConfirmTTL time.Duration
	now             func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithAccessTokenTTL configures access token lifetime.
func WithAccessTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithEmailConfirmationTTL configures email-confirmation token lifetime.
func WithEmailConfirmationTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.emailConfirmTTL = ttl
		}
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec around the signing secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	c := &Codec{
		secret:          []byte(secret),
		issuer:          defaultIssuer,
		accessTTL:       defaultAccessTTL,
		emailConfirmTTL: defaultEmailConfirmTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessToken signs an access token for the user. The role name is a
// snapshot: role changes do not affect tokens already in flight. A non-empty
// fingerprint binds the token to a caller-supplied value checked on decode.
func (c *Codec) AccessToken(userID int64, role string, sessionID uuid.UUID, fingerprint string) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(c.accessTTL)
	claims := Claims{
		SessionID:   sessionID.String(),
		Role:        role,
		Purpose:     PurposeAccess,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}
	token, err := c.encode(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// EmailConfirmationToken signs a confirmation token carrying only the subject.
func (c *Codec) EmailConfirmationToken(userID int64) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(c.emailConfirmTTL)
	claims := Claims{
		Purpose: PurposeEmailConfirmation,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := c.encode(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Decode verifies the signature and expiry and returns the payload. When
// fingerprint is non-empty it must match the embedded claim; a mismatch is a
// verification failure, never silently ignored.
func (c *Codec) Decode(token, fingerprint string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }), jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if fingerprint != "" && fingerprint != claims.Fingerprint {
		return nil, fmt.Errorf("%w: fingerprint mismatch", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyAccessToken decodes the token and asserts it was minted for API
// access. A non-empty fingerprint must match the one embedded at mint time.
func (c *Codec) VerifyAccessToken(token, fingerprint string) (*Claims, error) {
	claims, err := c.Decode(token, fingerprint)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeAccess {
		return nil, fmt.Errorf("%w: unexpected purpose %q", ErrInvalidToken, claims.Purpose)
	}
	return claims, nil
}

// VerifyEmailConfirmationToken decodes the token, asserts its purpose and
// returns the confirmed user id.
func (c *Codec) VerifyEmailConfirmationToken(token string) (int64, error) {
	claims, err := c.Decode(token, "")
	if err != nil {
		return 0, err
	}
	if claims.Purpose != PurposeEmailConfirmation {
		return 0, fmt.Errorf("%w: unexpected purpose %q", ErrInvalidToken, claims.Purpose)
	}
	return claims.UserID()
}

func (c *Codec) encode(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// NewRefreshToken generates a high-entropy opaque refresh token. The
// plaintext goes to the client exactly once; only its hash is stored.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRefreshToken returns the hex SHA-256 digest persisted and compared in
// place of the plaintext.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
