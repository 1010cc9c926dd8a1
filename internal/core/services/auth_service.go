package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
)

// TokenService validates access tokens minted by the identity provider.
// Credentials are never checked here; a valid signature is the whole contract.
type TokenService struct {
	jwtSecret []byte
	clock     func() time.Time
}

func NewTokenService(secret string) (ports.TokenService, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &TokenService{
		jwtSecret: []byte(secret),
		clock:     time.Now,
	}, nil
}

func (s *TokenService) Parse(token string) (*domain.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", domain.ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, domain.ErrUnauthorized)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", domain.ErrUnauthorized)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("subject is not a user id: %w", domain.ErrUnauthorized)
	}

	identity := &domain.Identity{UserID: userID}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	return identity, nil
}

// Issue mints an access token. Used by tests and local tooling standing in for the identity provider.
func (s *TokenService) Issue(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := s.clock()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
