package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fintrack/backend/internal/config"
)

var (
	// ErrInvalidToken is returned for malformed tokens, bad signatures
	// and unexpected signing methods.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for well-formed tokens past their
	// expiry. Expiry is the only invalidation mechanism at this layer.
	ErrExpiredToken = errors.New("token expired")
)

// Service issues and validates signed bearer tokens encoding a user
// identity claim.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService builds a token service from the JWT configuration.
func NewService(cfg config.JWTConfig) *Service {
	return &Service{
		secret: []byte(cfg.SecretKey),
		ttl:    cfg.AccessTokenTTL(),
	}
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue creates a signed token for the given user, valid for the
// configured TTL.
func (s *Service) Issue(userID int) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.Itoa(userID),
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
		"jti": uuid.NewString(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Validate verifies signature and expiry and returns the encoded user
// ID.
func (s *Service) Validate(tokenString string) (int, error) {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return 0, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.Atoi(sub)
	if err != nil {
		return 0, ErrInvalidToken
	}

	return userID, nil
}
