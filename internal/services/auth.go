package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	adminRole        = "admin"
	adminTokenTTL    = 24 * time.Hour
	adminTokenIssuer = "afrobirthday-admin"
)

var (
	ErrAuthUnavailable        = errors.New("admin login is not configured")
	ErrAuthInvalidCredentials = errors.New("invalid credentials")
	ErrAuthInvalidToken       = errors.New("invalid admin token")
)

// AdminClaims is the payload of an admin bearer token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	Username    string
	Password    string
	TokenSecret string
}

// AuthService issues and verifies admin bearer tokens signed with HS256.
type AuthService struct {
	username string
	password string
	secret   []byte
	now      func() time.Time
	logger   *slog.Logger
}

func NewAuthService(cfg AuthConfig, logger *slog.Logger) *AuthService {
	return &AuthService{
		username: cfg.Username,
		password: cfg.Password,
		secret:   []byte(cfg.TokenSecret),
		now:      time.Now,
		logger:   logger,
	}
}

func (s *AuthService) configured() bool {
	return s != nil && s.username != "" && s.password != "" && len(s.secret) > 0
}

// Login checks the admin credentials and returns a token valid for 24 hours.
func (s *AuthService) Login(username, password string) (string, time.Time, error) {
	if !s.configured() {
		return "", time.Time{}, ErrAuthUnavailable
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		if s.logger != nil {
			s.logger.Warn("admin login rejected")
		}
		return "", time.Time{}, ErrAuthInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(adminTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.username,
			Issuer:    adminTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken parses a bearer token and returns its claims.
func (s *AuthService) VerifyToken(raw string) (*AdminClaims, error) {
	if !s.configured() {
		return nil, ErrAuthUnavailable
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrAuthInvalidToken
	}

	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthInvalidToken, err)
	}
	if claims.Role != adminRole {
		return nil, fmt.Errorf("%w: unexpected role %q", ErrAuthInvalidToken, claims.Role)
	}
	return claims, nil
}
