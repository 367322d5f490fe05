package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer       = "termfolio"
	refreshTokenBytes = 32
	minSecretBytes    = 32
)

// Claims are the access-token claims. Subject holds the user id and ID the
// jti used for revocation.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens and hashes refresh tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if ttl <= 0 {
		return nil, errors.New("access token ttl must be greater than 0")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: secret, ttl: ttl, now: now}, nil
}

// Issue returns a signed access token for user and its claims.
func (t *TokenIssuer) Issue(user UserRecord) (string, Claims, error) {
	now := t.now()
	claims := Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, algorithm, issuer and expiry. Every failure is
// reported as ErrInvalidToken.
func (t *TokenIssuer) Parse(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	return claims, nil
}

// NewRefreshToken returns an opaque random token.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// tokenHash is the storage key of a refresh token.
func (t *TokenIssuer) tokenHash(token string) string {
	mac := hmac.New(sha256.New, t.secret)
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// tokenRef is a log-safe reference to a token.
func (t *TokenIssuer) tokenRef(token string) string {
	return t.tokenHash(token)[:12]
}
