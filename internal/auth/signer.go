package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

// TokenSigner issues and verifies stateless access tokens.
type TokenSigner interface {
	Sign(userID string) (string, error)
	Verify(token string) (Claims, error)
}

type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Type   string `json:"typ"`
}

type JWTSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTSigner(secret string, ttl time.Duration) (*JWTSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *JWTSigner) TTL() time.Duration {
	return s.ttl
}

func (s *JWTSigner) Sign(userID string) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
		Type:   accessTokenType,
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return encoded, nil
}

// Verify returns ErrInvalidToken for a bad signature, a malformed token, an
// elapsed expiry or a token that is not an access token.
func (s *JWTSigner) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != accessTokenType || claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
