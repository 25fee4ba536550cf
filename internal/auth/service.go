package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type Claims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

type Service interface {
	IssueToken(clientID, clientSecret string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type service struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	clients     map[string]string
}

// NewService builds a client-credential token service. Clients are the
// config-listed API consumers (the prescribing front ends), not end users.
func NewService(jwtSecret string, tokenExpiry time.Duration, clients map[string]string) Service {
	return &service{
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
		clients:     clients,
	}
}

func (s *service) IssueToken(clientID, clientSecret string) (string, error) {
	expected, ok := s.clients[clientID]
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(clientSecret)) != 1 {
		return "", ErrInvalidCredentials
	}

	claims := &Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
