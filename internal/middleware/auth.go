package middleware

import (
	"bearcatboard/internal/auth"
	"bearcatboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// TokenVerifier checks an Authorization header value and returns its claims.
type TokenVerifier interface {
	Authenticate(header string) (*auth.Claims, error)
}

// AuthRequired enforces a valid bearer token on protected routes.
// Verified claims are stored in c.Locals("claims") and in the request context.
func AuthRequired(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := verifier.Authenticate(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return models.RespondWithAppError(c, err)
		}

		c.Locals("userID", claims.UserID)
		c.Locals("claims", claims)

		ctx := WithUserID(c.UserContext(), claims.UserID)
		c.SetUserContext(auth.NewContext(ctx, claims))

		return c.Next()
	}
}
