// Package auth validates access tokens and maps roles to permissions.
// Token issuance lives in the identity service; GenerateAccessToken exists
// for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/core/id"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "factorydesk",
		AccessTokenTTL: 15 * time.Minute,
	}
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string `json:"uid"`
	CompanyID     string `json:"cid,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	SalesPersonID string `json:"spid,omitempty"`
}

// Identity is what a token asserts about its bearer.
type Identity struct {
	UserID        string
	CompanyID     id.ID
	Email         string
	Role          string
	SalesPersonID *id.ID
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateAccessToken signs a token for who.
func (s *JWTService) GenerateAccessToken(who Identity) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   who.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: who.UserID,
		Email:  who.Email,
		Role:   who.Role,
	}
	if !id.IsNil(who.CompanyID) {
		claims.CompanyID = who.CompanyID.String()
	}
	if who.SalesPersonID != nil {
		claims.SalesPersonID = who.SalesPersonID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates JWT and returns user context with the
// permissions of the token's role.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user")
	}

	role := Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	user := &appctx.UserContext{
		UserID:       claims.UserID,
		Email:        claims.Email,
		Role:         claims.Role,
		Permissions:  role.Permissions(),
		IsSuperAdmin: role == RoleSuperAdmin,
	}

	if claims.CompanyID != "" {
		companyID, err := id.Parse(claims.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("company claim: %w", err)
		}
		user.CompanyID = companyID
	} else if !user.IsSuperAdmin {
		return nil, errors.New("token has no company")
	}

	if claims.SalesPersonID != "" {
		salesPersonID, err := id.Parse(claims.SalesPersonID)
		if err != nil {
			return nil, fmt.Errorf("sales person claim: %w", err)
		}
		user.SalesPersonID = &salesPersonID
	}

	return user, nil
}
