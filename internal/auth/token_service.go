package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/scry-tasks/internal/platform/logger"
)

// AdminTokenType is the type claim carried by admin tokens.
const AdminTokenType = "admin"

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// TokenService issues and validates admin tokens.
type TokenService interface {
	// GenerateToken creates a signed admin token for subject.
	GenerateToken(ctx context.Context, subject string) (string, error)

	// ValidateToken checks the signature, lifetime and type of a token and
	// returns its claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of an admin token.
type Claims struct {
	TokenType string    `json:"type,omitempty"`
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// hmacTokenService is an implementation of TokenService using HMAC-SHA signing.
type hmacTokenService struct {
	signingKey    []byte
	tokenLifetime time.Duration
	timeFunc      func() time.Time // Injectable for testing
	clockSkew     time.Duration    // Allowed time difference for validation to handle clock drift
}

// jwtCustomClaims defines the structure of JWT claims we use
type jwtCustomClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Ensure hmacTokenService implements TokenService interface
var _ TokenService = (*hmacTokenService)(nil)

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret string, lifetime time.Duration) (TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return newHMACTokenService(secret, lifetime, time.Now), nil
}

func newHMACTokenService(secret string, lifetime time.Duration, now func() time.Time) *hmacTokenService {
	return &hmacTokenService{
		signingKey:    []byte(secret),
		tokenLifetime: lifetime,
		timeFunc:      now,
		clockSkew:     2 * time.Minute,
	}
}

// GenerateToken creates a signed JWT admin token.
func (s *hmacTokenService) GenerateToken(ctx context.Context, subject string) (string, error) {
	log := logger.FromContext(ctx)
	now := s.timeFunc()

	claims := jwtCustomClaims{
		TokenType: AdminTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenLifetime)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.signingKey)
	if err != nil {
		log.Error("failed to sign admin token",
			"error", err,
			"subject", subject,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", fmt.Errorf("failed to sign admin token with HMAC-SHA256: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates an admin token and returns the claims if valid.
func (s *hmacTokenService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := s.timeFunc()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time {
			return now
		}),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwtCustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		parserOpts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("admin token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("admin token validation failed: token not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("admin token validation failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*jwtCustomClaims)
	if !ok || !token.Valid {
		log.Debug("admin token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}
	if claims.TokenType != AdminTokenType {
		log.Debug("admin token validation failed: wrong token type",
			"expected", AdminTokenType,
			"actual", claims.TokenType)
		return nil, ErrWrongTokenType
	}

	return &Claims{
		TokenType: claims.TokenType,
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}, nil
}
