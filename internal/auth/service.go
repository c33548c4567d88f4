package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey is returned when the presented service key does not match.
var ErrInvalidKey = errors.New("invalid service key")

// ErrInvalidToken is returned for expired or malformed tokens.
var ErrInvalidToken = errors.New("invalid token")

const tokenTTL = 24 * time.Hour

// Service exchanges the chat gateway's shared key for a short-lived JWT and
// validates tokens on every request. The key is stored as a bcrypt hash.
type Service interface {
	IssueToken(ctx context.Context, serviceKey string) (string, error)
	ValidateToken(ctx context.Context, token string) error
}

type service struct {
	keyHash []byte
	secret  []byte
}

func NewService(serviceKeyHash, jwtSecret string) Service {
	return &service{keyHash: []byte(serviceKeyHash), secret: []byte(jwtSecret)}
}

var _ Service = (*service)(nil)

func (s *service) IssueToken(ctx context.Context, serviceKey string) (string, error) {
	if len(s.keyHash) == 0 {
		return "", errors.New("SERVICE_KEY_HASH not configured")
	}
	if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(serviceKey)); err != nil {
		return "", ErrInvalidKey
	}
	claims := jwt.RegisteredClaims{
		Subject:   "gateway",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) error {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return ErrInvalidToken
	}
	return nil
}
