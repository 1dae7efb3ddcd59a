package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
)

// Token type values carried in the "type" claim. Access tokens authenticate
// API requests; refresh tokens are opaque and never pass through here, but
// the claim guards against a refresh-shaped JWT being replayed as access.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Verification failures. Verify collapses every failure into exactly one of
// these so callers can branch without inspecting jwt internals.
var (
	ErrTokenMalformed   = errors.New("token is malformed")
	ErrBadSignature     = errors.New("token signature is invalid")
	ErrTokenExpired     = errors.New("token is expired")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
)

// Claims are the registered and private claims of a portal access token.
type Claims struct {
	Role      string `json:"role"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies HS256 access tokens. Verification is pure:
// it depends only on the token bytes, the signing key, and the clock, never
// on stored state.
type TokenManager struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
	now       func() time.Time
}

// NewTokenManager creates a token manager with the given signing secret and
// access-token lifetime.
func NewTokenManager(secret string, accessTTL time.Duration, issuer string) *TokenManager {
	return &TokenManager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    issuer,
		now:       time.Now,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// MintAccessToken issues a signed access token for the user.
func (m *TokenManager) MintAccessToken(userID uuid.UUID, role domain.Role) (string, error) {
	now := m.now()
	claims := Claims{
		Role:      string(role),
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses and validates an access token, returning its
// claims. Failures are classified: a garbled token is ErrTokenMalformed, a
// wrong key is ErrBadSignature, a past exp is ErrTokenExpired, and a valid
// token of another type is ErrWrongTokenType.
func (m *TokenManager) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrTokenMalformed
		}
	}

	if !token.Valid {
		return nil, ErrBadSignature
	}

	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
