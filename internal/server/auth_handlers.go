package server

import (
	"time"

	"bearcatboard/internal/auth"
	"bearcatboard/internal/config"
	"bearcatboard/internal/models"
	"bearcatboard/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
)

// Register handles POST /auth/register
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		s.metrics.AuthEvent("register", outcome(err))
		return s.respondError(c, err)
	}
	s.metrics.AuthEvent("register", "success")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    user.Public(),
	})
}

// Login handles POST /auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Identifier string `json:"identifier"`
		Username   string `json:"username"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = s.identifierAlias(req.Username, req.Email)
	}

	result, err := s.authService.Login(c.UserContext(), service.LoginInput{
		Identifier: identifier,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		UserAgent:  c.Get(fiber.HeaderUserAgent),
		IP:         c.IP(),
	})
	if err != nil {
		s.metrics.AuthEvent("login", outcome(err))
		return s.respondError(c, err)
	}
	s.metrics.AuthEvent("login", "success")

	if result.RefreshToken != "" {
		s.setRefreshCookie(c, result.RefreshToken)
	}

	return c.JSON(fiber.Map{
		"accessToken": result.AccessToken,
		"user":        result.User,
	})
}

// identifierAlias picks the legacy body field matching the configured login identifier.
func (s *Server) identifierAlias(username, email string) string {
	if s.config.LoginIdentifier == config.IdentifierEmail {
		return email
	}
	return username
}

// RefreshToken handles POST /auth/refresh-token
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	result, err := s.authService.Refresh(c.UserContext(), c.Cookies(refreshCookieName))
	if err != nil {
		s.metrics.AuthEvent("refresh", outcome(err))
		if models.HasCode(err, models.CodeTokenInvalid) {
			s.clearRefreshCookie(c)
		}
		return s.respondError(c, err)
	}
	s.metrics.AuthEvent("refresh", "success")

	s.setRefreshCookie(c, result.RefreshToken)
	return c.JSON(fiber.Map{"accessToken": result.AccessToken})
}

// Logout handles POST /auth/logout
func (s *Server) Logout(c *fiber.Ctx) error {
	err := s.authService.Logout(c.UserContext(), c.Cookies(refreshCookieName))
	s.clearRefreshCookie(c)
	s.metrics.AuthEvent("logout", outcome(err))
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// LogoutAll handles POST /auth/logout-all
func (s *Server) LogoutAll(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	n, err := s.authService.LogoutAll(c.UserContext(), claims.UserID)
	if err != nil {
		s.metrics.AuthEvent("logout_all", outcome(err))
		return s.respondError(c, err)
	}
	s.metrics.AuthEvent("logout_all", "success")
	s.clearRefreshCookie(c)

	return c.JSON(fiber.Map{
		"message":  "Logged out from all devices",
		"sessions": n,
	})
}

// Me handles GET /auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	return c.JSON(s.authService.Me(claims))
}

// Profile handles GET /auth/profile/:username
func (s *Server) Profile(c *fiber.Ctx) error {
	profile, err := s.authService.Profile(c.UserContext(), c.Params("username"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": profile})
}

func (s *Server) setRefreshCookie(c *fiber.Ctx, token string) {
	ttl := s.tokens.RefreshTTL()
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		Secure:   s.config.IsProduction(),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		Secure:   s.config.IsProduction(),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
