package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/sesmanagement/discussions/internal/logger"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing token")
	log             = logger.New("auth")
)

// TokenProvider supplies the bearer token used for REST calls and the socket handshake
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider for a token obtained elsewhere (login form, env, flag)
type StaticToken string

// Token returns the token, or ErrMissingToken when it is blank
func (s StaticToken) Token() (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// JWTClaims represents the claims the console backend puts into its tokens
type JWTClaims struct {
	UserID string `json:"id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserIDFromToken reads the local user id out of a token without verifying it.
// The client never holds the signing key; the server verifies on every call.
func UserIDFromToken(tokenString string) (string, error) {
	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		log.Warn("Could not parse token %s: %v", logger.Preview(tokenString), err)
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: no user id claim", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// Signer mints and verifies HS256 tokens; used by the reference backend and tests
type Signer struct {
	key []byte
	ttl time.Duration
}

// NewSigner creates a signer with the given secret; ttl <= 0 means 24h
func NewSigner(key []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{key: key, ttl: ttl}
}

// GenerateToken creates a new token for a user
func (s *Signer) GenerateToken(userID, name string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user ID cannot be empty")
	}

	expirationTime := time.Now().Add(s.ttl)

	claims := &JWTClaims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.key)

	return tokenString, expirationTime, err
}

// ValidateToken validates a token and returns the claims
func (s *Signer) ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		log.Warn("Validating empty token")
		return nil, ErrMissingToken
	}
	log.Debug("Validating token: %s", logger.Preview(tokenString))

	claims := &JWTClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			log.Error("Unexpected signing method: %v", token.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})

	if err != nil {
		log.Debug("Token validation error: %v", err)
		return nil, err
	}

	if !token.Valid || claims.UserID == "" {
		log.Warn("Token is invalid")
		return nil, ErrInvalidToken
	}

	return claims, nil
}
