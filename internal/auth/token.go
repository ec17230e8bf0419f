package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "pagesnap"

// Claims are the verified contents of a signed token. Validity is determined
// purely by signature and expiry; nothing about the token is persisted.
type Claims struct {
	Subject   string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 signed tokens bound to API key
// records. The signing secret is held for the process lifetime.
type TokenService struct {
	registry *KeyRegistry
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService wires token issuance to the key registry.
func NewTokenService(registry *KeyRegistry, secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		registry: registry,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL reports the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// IssueToken signs a bearer token for the given key id. An unknown or expired
// id fails with ErrInvalidKey.
func (s *TokenService) IssueToken(ctx context.Context, id string) (string, error) {
	record, ok, err := s.registry.GetAPIKeyRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidKey
	}

	now := s.now()
	claims := tokenClaims{
		Name: record.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   record.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates signature and expiry and returns the embedded claims.
// Expired tokens fail with ErrTokenExpired; every other defect (bad signature,
// wrong algorithm, malformed payload) fails with ErrInvalidToken.
func (s *TokenService) VerifyToken(raw string) (Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		Subject: claims.Subject,
		Name:    claims.Name,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
