package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/prospect-enrichment-api/internal/config"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"go.uber.org/zap"
)

const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// Claims are the bearer token claims. Agents may run lookups; admins may
// also manage the key pool.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	secret []byte
	issuer string
	now    func() time.Time
	logger *zap.Logger
}

// NewAuthService creates an HS256 token service. With an empty secret every
// token is rejected.
func NewAuthService(cfg *config.AuthConfig, logger *zap.Logger) *AuthService {
	log := logger.Named("AuthService")
	if cfg.JWTSecret == "" {
		log.Warn("auth.jwtSecret is empty, all authenticated routes will reject requests")
	}
	return &AuthService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		now:    time.Now,
		logger: log,
	}
}

func (s *AuthService) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("%w: signing secret is not configured", ierr.ErrInternalServer)
	}
	if role != RoleAdmin && role != RoleAgent {
		return "", fmt.Errorf("%w: unknown role %q", ierr.ErrValidation, role)
	}

	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("%w: token validation is not configured", ierr.ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Debug("Token rejected", zap.Error(err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ierr.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ierr.ErrInvalidToken, err)
	}

	if claims.Role != RoleAdmin && claims.Role != RoleAgent {
		return nil, fmt.Errorf("%w: unknown role %q", ierr.ErrTokenInvalidClaims, claims.Role)
	}
	return claims, nil
}
