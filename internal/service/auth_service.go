// Package service holds the business rules behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"bearcatboard/internal/auth"
	"bearcatboard/internal/cache"
	"bearcatboard/internal/config"
	"bearcatboard/internal/middleware"
	"bearcatboard/internal/models"
	"bearcatboard/internal/observability"
	"bearcatboard/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// AuthConfig holds the login policy of AuthService.
type AuthConfig struct {
	LoginIdentifier    string
	AlwaysIssueRefresh bool
	SiteURL            string
	BcryptCost         int
}

// AuthService registers users and manages their access and refresh tokens.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *auth.TokenManager
	cache    *cache.Cache
	cfg      AuthConfig

	dummyOnce sync.Once
	dummyHash []byte
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

type LoginInput struct {
	Identifier string
	Password   string
	RememberMe bool
	UserAgent  string
	IP         string
}

// LoginResult carries the refresh token only when one was issued.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         models.SessionUser
}

type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenManager,
	profileCache *cache.Cache,
	cfg AuthConfig,
) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.LoginIdentifier == "" {
		cfg.LoginIdentifier = config.IdentifierUsername
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		cache:    profileCache,
		cfg:      cfg,
	}
}

// Register creates an account. Username and email must both be unused.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, models.NewValidationError("Email, username, and password are required")
	}

	existing, err := s.users.FindByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("Username or email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, models.NewValidationError("Password must be at most 72 bytes")
		}
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		ProfileURL:   s.cfg.SiteURL + "/users/" + username,
	}
	// The unique indexes decide races the lookup above cannot see.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "user registered", slog.Uint64("user_id", uint64(user.ID)))
	return user, nil
}

// Login verifies credentials and issues an access token, plus a refresh
// token and session row when RememberMe is set or the policy always issues one.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (_ *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "AuthService", "Login")
	defer func() { observability.EndSpan(span, err) }()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		return nil, models.NewValidationError("Identifier and password are required")
	}

	var user *models.User
	if s.cfg.LoginIdentifier == config.IdentifierEmail {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}

	if user == nil {
		// Same bcrypt work as a real comparison so timing does not reveal unknown users.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(in.Password))
		return nil, models.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, models.NewInvalidCredentialsError()
	}

	identity := auth.Identity{UserID: user.ID, Username: user.Username, Avatar: user.Avatar}
	access, err := s.tokens.IssueAccess(identity)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	result := &LoginResult{
		AccessToken: access,
		User:        models.SessionUser{ID: user.ID, Username: user.Username, Avatar: user.Avatar},
	}

	if in.RememberMe || s.cfg.AlwaysIssueRefresh {
		refresh, err := s.tokens.IssueRefresh(identity)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		session := &models.Session{
			UserID:    user.ID,
			TokenHash: auth.HashToken(refresh),
			UserAgent: truncate(in.UserAgent, 255),
			IP:        truncate(in.IP, 64),
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, err
		}
		result.RefreshToken = refresh
	}

	return result, nil
}

// Refresh exchanges a live refresh token for a new access token and rotates
// the refresh token. A token that was already rotated or revoked is forbidden.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ *RefreshResult, err error) {
	ctx, span := observability.StartSpan(ctx, "AuthService", "Refresh")
	defer func() { observability.EndSpan(span, err) }()

	if refreshToken == "" {
		return nil, models.NewUnauthorizedError("Refresh token required")
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, models.NewTokenInvalidError("Invalid refresh token")
	}

	oldHash := auth.HashToken(refreshToken)
	session, err := s.sessions.FindByUserAndHash(ctx, claims.UserID, oldHash)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.NewTokenInvalidError("Invalid refresh token")
	}

	identity := claims.Identity()
	access, err := s.tokens.IssueAccess(identity)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	next, err := s.tokens.IssueRefresh(identity)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	rotated, err := s.sessions.Rotate(ctx, session.ID, oldHash, auth.HashToken(next))
	if err != nil {
		return nil, err
	}
	if !rotated {
		middleware.Logger.WarnContext(ctx, "refresh token reused after rotation",
			slog.Uint64("user_id", uint64(claims.UserID)),
			slog.Uint64("session_id", uint64(session.ID)),
		)
		return nil, models.NewTokenInvalidError("Invalid refresh token")
	}

	return &RefreshResult{AccessToken: access, RefreshToken: next}, nil
}

// Logout revokes the session of refreshToken. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return models.NewUnauthorizedError("Refresh token required")
	}
	_, err := s.sessions.DeleteByHash(ctx, auth.HashToken(refreshToken))
	return err
}

// LogoutAll revokes every session of userID and returns how many were removed.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint) (int64, error) {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	middleware.Logger.InfoContext(ctx, "all sessions revoked", slog.Int64("sessions", n))
	return n, nil
}

// Authenticate verifies the Authorization header value.
// A missing bearer token is unauthorized; a bad one is forbidden.
func (s *AuthService) Authenticate(header string) (*auth.Claims, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, models.NewUnauthorizedError("Authorization required")
	}

	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return nil, models.NewTokenInvalidError("Invalid or expired token")
	}
	return claims, nil
}

// Me returns the identity in claims without touching the database.
func (s *AuthService) Me(claims *auth.Claims) models.SessionUser {
	return models.SessionUser{ID: claims.UserID, Username: claims.Username, Avatar: claims.Avatar}
}

// Profile returns the public profile of username.
func (s *AuthService) Profile(ctx context.Context, username string) (*models.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.NewValidationError("Username is required")
	}

	var profile models.Profile
	err := s.cache.Aside(ctx, cache.ProfileKey(username), &profile, cache.ProfileTTL, func() error {
		user, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if user == nil {
			return models.NewNotFoundError("User", username)
		}
		profile = user.Profile()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("bearcatboard-timing-placeholder"), s.cfg.BcryptCost)
		if err != nil {
			middleware.Logger.Error("failed to build dummy hash", slog.String("error", err.Error()))
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
