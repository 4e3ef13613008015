// Package auth provides authentication for the nspawnium API. A single
// admin account is configured at startup (username plus bcrypt hash); a
// successful login yields a signed JWT that all other routes require.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"evalgo.org/nspawnium/internal/config"
)

var (
	// ErrInvalidToken is returned when a JWT token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a JWT token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidCredentials is returned when credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims represents JWT custom claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTService issues and validates admin tokens.
type JWTService struct {
	secret        []byte
	expiration    time.Duration
	adminUser     string
	adminPassHash string
}

// NewJWTService creates a new JWT service from the auth config.
func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		secret:        []byte(cfg.Auth.JWTSecret),
		expiration:    cfg.Auth.JWTExpiration,
		adminUser:     cfg.Auth.AdminUser,
		adminPassHash: cfg.Auth.AdminPasswordHash,
	}
}

// Login verifies the admin credentials and returns a signed token. The
// bcrypt comparison runs even for an unknown username so both failure modes
// take similar time.
func (s *JWTService) Login(username, password string) (string, time.Time, error) {
	hash := s.adminPassHash
	if username != s.adminUser {
		hash = "$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.GenerateToken(username)
}

// GenerateToken signs a new access token for the given username.
func (s *JWTService) GenerateToken(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "nspawnium",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HashPassword hashes a password using bcrypt. Used by the hash command.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword compares a password with its hash.
func ComparePassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}
