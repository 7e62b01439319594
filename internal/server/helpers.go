package server

import (
	"errors"
	"log/slog"
	"strings"

	"bearcatboard/internal/middleware"
	"bearcatboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// respondError logs internal failures with their cause and answers with the
// mapped status. Causes never reach the client.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithError(c, status, err)
}

// outcome labels an auth event metric by error code.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return strings.ToLower(models.CodeInternal)
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(c *fiber.Ctx, key string, def int) int {
	v := c.QueryInt(key, def)
	if v < 1 {
		return def
	}
	return v
}
