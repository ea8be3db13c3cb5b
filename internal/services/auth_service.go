// Package services – AuthService
//
// This file implements concierge authentication: bcrypt password checks,
// access-card lookups, HS256 bearer tokens and the revoked-token blacklist.
// ApprovalService depends on it through the Authenticator interface for the
// second authentication step that makes a session's operations permanent.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
)

var tokenSignatureAlg = jwt.SigningMethodHS256

// Credentials identify an account either by login+password or by card id.
type Credentials struct {
	Login    string `json:"login,omitempty"`
	Password string `json:"password,omitempty"`
	CardID   string `json:"card_id,omitempty"`
}

// Claims are carried by bearer tokens.
type Claims struct {
	UserID uint        `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies credentials and a minimum role.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials, required domain.Role) (*domain.Authenticated, error)
}

// AuthService implements Authenticator and token management.
type AuthService struct {
	DB         *gorm.DB
	Clock      Clock
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, clock Clock, secret string, ttl time.Duration, cost int) *AuthService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{DB: db, Clock: clock, Secret: []byte(secret), TokenTTL: ttl, BcryptCost: cost}
}

// HashPassword returns the bcrypt hash of pw.
func (s *AuthService) HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), s.BcryptCost)
	if err != nil {
		return "", internalError("hash password", err)
	}
	return string(h), nil
}

// Authenticate resolves creds to an account and checks its role. A card id
// takes precedence over login+password when both are given.
func (s *AuthService) Authenticate(ctx context.Context, creds Credentials, required domain.Role) (*domain.Authenticated, error) {
	var (
		u   *domain.User
		err error
	)
	switch {
	case strings.TrimSpace(creds.CardID) != "":
		u, err = repo.GetUserByCard(ctx, s.DB, strings.TrimSpace(creds.CardID))
	case strings.TrimSpace(creds.Login) != "" && creds.Password != "":
		u, err = repo.GetUserByLogin(ctx, s.DB, strings.TrimSpace(creds.Login))
		if err == nil && u.Account != nil {
			if bcrypt.CompareHashAndPassword([]byte(u.Account.PasswordHash), []byte(creds.Password)) != nil {
				return nil, ErrBadCredentials
			}
		}
	default:
		return nil, ErrBadCredentials
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, internalError("authenticate", err)
	}
	if u.Account == nil {
		return nil, ErrBadCredentials
	}
	if !u.Account.Role.AtLeast(required) {
		return nil, ErrInsufficientRole
	}
	return &domain.Authenticated{User: *u, Account: *u.Account}, nil
}

// IssueToken signs a bearer token for an authenticated account.
func (s *AuthService) IssueToken(a *domain.Authenticated) (string, time.Time, error) {
	now := s.Clock.Now()
	exp := now.Add(s.TokenTTL)
	claims := Claims{
		UserID: a.User.ID,
		Role:   a.Account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(tokenSignatureAlg, claims).SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, internalError("sign token", err)
	}
	return signed, exp, nil
}

// Login authenticates creds (any role) and issues a token.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (string, time.Time, error) {
	a, err := s.Authenticate(ctx, creds, domain.RoleUser)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.IssueToken(a)
}

// ParseToken validates signature, expiry and the blacklist.
func (s *AuthService) ParseToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := decodeJWT(token, &Claims{}, s.Secret, s.Clock)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := repo.IsTokenBlacklisted(ctx, s.DB, token, s.Clock.Now())
	if err != nil {
		return nil, internalError("check blacklist", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke blacklists token until its natural expiry. Revoking twice is
// harmless.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	claims, err := decodeJWT(token, &Claims{}, s.Secret, s.Clock)
	if err != nil {
		return ErrInvalidToken
	}
	exp := s.Clock.Now().Add(s.TokenTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := repo.BlacklistToken(ctx, s.DB, token, exp); err != nil {
		return internalError("revoke token", err)
	}
	return nil
}

// PruneRevoked purges blacklist entries whose token has expired anyway.
func (s *AuthService) PruneRevoked(ctx context.Context) (int64, error) {
	n, err := repo.DeleteExpiredTokens(ctx, s.DB, s.Clock.Now())
	if err != nil {
		return 0, internalError("prune blacklist", err)
	}
	return n, nil
}

func decodeJWT[T jwt.Claims](tokenString string, claimsType T, secret []byte, clock Clock) (T, error) {
	var zero T

	parsed, err := jwt.ParseWithClaims(tokenString, claimsType, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{tokenSignatureAlg.Alg()}), jwt.WithTimeFunc(clock.Now))
	if err != nil {
		return zero, err
	}
	if parsed == nil || !parsed.Valid {
		return zero, jwt.ErrTokenUnverifiable
	}
	if claims, ok := parsed.Claims.(T); ok {
		return claims, nil
	}
	return zero, jwt.ErrTokenInvalidClaims
}
