package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the default bcrypt cost factor
	DefaultBcryptCost = 12

	// MaxPasswordLength is the maximum password length (bcrypt truncates at 72 bytes)
	MaxPasswordLength = 72
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("password too long")
	}
	if cost < bcrypt.MinCost {
		cost = DefaultBcryptCost
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(bytes), nil
}

// VerifyPassword verifies a password against a hash
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Service issues tokens for the configured admin credential
type Service struct {
	jwt       *JWTManager
	adminUser string
	adminHash string
}

// NewService creates the auth service
func NewService(cfg Config) *Service {
	return &Service{
		jwt:       NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration),
		adminUser: cfg.AdminUser,
		adminHash: cfg.AdminPasswordHash,
	}
}

// JWTManager returns the manager used to validate tokens
func (s *Service) JWTManager() *JWTManager {
	return s.jwt
}

// Login checks the credential and returns an access token
func (s *Service) Login(username, password string) (*TokenResponse, error) {
	if s.adminUser == "" || s.adminHash == "" {
		return nil, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUser)) == 1
	passOK := VerifyPassword(password, s.adminHash)
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(UserClaims{Username: username, IsAdmin: true})
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: token,
		ExpiresIn:   s.jwt.GetAccessTokenDuration(),
		TokenType:   "Bearer",
	}, nil
}
