package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/pkg/models"
)

const tokenIssuer = "github.com/temcen/basketrec"

var ErrUnauthorized = errors.New("unauthorized")

// AuthService issues and checks bearer credentials: HS256 tokens and static
// API keys from configuration.
type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	apiKeys   map[string]string
	logger    *logrus.Logger
}

// NewAuthService parses cfg.APIKeys entries of the form "key" or "key:role".
// A key without a role is a client key.
func NewAuthService(cfg config.AuthConfig, logger *logrus.Logger) *AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	keys := make(map[string]string, len(cfg.APIKeys))
	for _, entry := range cfg.APIKeys {
		key, role, found := strings.Cut(strings.TrimSpace(entry), ":")
		if key == "" {
			continue
		}
		if !found || role == "" {
			role = models.RoleClient
		}
		if role != models.RoleClient && role != models.RoleAdmin {
			logger.WithField("role", role).Warn("Ignoring API key with unknown role")
			continue
		}
		keys[key] = role
	}

	return &AuthService{
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  ttl,
		apiKeys:   keys,
		logger:    logger,
	}
}

func (s *AuthService) GenerateToken(subject, role string) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", fmt.Errorf("no JWT secret configured")
	}

	now := time.Now()
	claims := &models.JWTClaims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, fmt.Errorf("no JWT secret configured: %w", ErrUnauthorized)
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", errors.Join(err, ErrUnauthorized))
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims: %w", ErrUnauthorized)
	}
	return claims, nil
}

// ValidateAPIKey returns the role bound to apiKey.
func (s *AuthService) ValidateAPIKey(apiKey string) (string, error) {
	if role, exists := s.apiKeys[apiKey]; exists {
		return role, nil
	}
	return "", fmt.Errorf("invalid API key: %w", ErrUnauthorized)
}
