package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// RoleAdmin is the only role issued; it guards listing and purge.
const RoleAdmin = "admin"

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// VerifyPassword compares a plain password with a hashed password
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type AuthService struct {
	secret       []byte
	username     string
	passwordHash string
	tokenTTL     time.Duration
	now          func() time.Time
}

func NewAuthService(secret, username, passwordHash string) *AuthService {
	return &AuthService{
		secret:       []byte(secret),
		username:     username,
		passwordHash: passwordHash,
		tokenTTL:     4 * time.Hour,
		now:          time.Now,
	}
}

// Enabled is false when no secret or password hash is configured; admin
// routes then refuse every request.
func (s *AuthService) Enabled() bool {
	return len(s.secret) > 0 && s.passwordHash != ""
}

// Login checks the admin credentials and returns a signed token.
func (s *AuthService) Login(username, password string) (string, error) {
	if !s.Enabled() {
		return "", ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	if !VerifyPassword(password, s.passwordHash) || !userOK {
		return "", ErrInvalidCredentials
	}
	return s.GenerateJWT(s.username, RoleAdmin)
}

// GenerateJWT generates a JWT token with subject and role
func (s *AuthService) GenerateJWT(subject, role string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses tokenString and returns its role.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("admin access is not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return "", errors.New("invalid token payload")
	}
	return role, nil
}
