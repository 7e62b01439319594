// Package auth issues and verifies the access and refresh JWTs.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// RoleAuthenticated is the only role carried by access tokens.
	RoleAuthenticated = "authenticated"
	// TokenTypeRefresh marks refresh tokens so they can never pass as access tokens.
	TokenTypeRefresh = "refresh"

	issuer   = "bearcatboard-api"
	audience = "bearcatboard-client"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the user data embedded in every token.
type Identity struct {
	UserID   uint
	Username string
	Avatar   string
}

// Claims is the JWT payload for both token kinds.
type Claims struct {
	UserID    uint   `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the identity carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, Avatar: c.Avatar}
}

// TokenManager signs and parses tokens with separate keys per kind.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// RefreshTTL is the lifetime of refresh tokens and their cookie.
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// IssueAccess signs a short-lived access token.
func (m *TokenManager) IssueAccess(id Identity) (string, error) {
	claims := m.claims(id, m.accessTTL)
	claims.Role = RoleAuthenticated
	return m.sign(claims, m.accessSecret)
}

// IssueRefresh signs a refresh token. Each call yields a distinct value.
func (m *TokenManager) IssueRefresh(id Identity) (string, error) {
	claims := m.claims(id, m.refreshTTL)
	claims.TokenType = TokenTypeRefresh
	return m.sign(claims, m.refreshSecret)
}

// ParseAccess verifies an access token.
func (m *TokenManager) ParseAccess(token string) (*Claims, error) {
	claims, err := m.parse(token, m.accessSecret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "" || claims.Role != RoleAuthenticated {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token.
func (m *TokenManager) ParseRefresh(token string) (*Claims, error) {
	claims, err := m.parse(token, m.refreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}
	return claims, nil
}

func (m *TokenManager) claims(id Identity, ttl time.Duration) *Claims {
	now := m.now()
	return &Claims{
		UserID:   id.UserID,
		Username: id.Username,
		Avatar:   id.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
}

func (m *TokenManager) sign(claims *Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("signing secret not configured")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *TokenManager) parse(token string, secret []byte) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// HashToken returns the hex SHA-256 digest stored in place of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
