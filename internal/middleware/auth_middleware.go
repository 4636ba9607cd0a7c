package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// TokenValidator returns the role carried by a bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// AdminOnly validates the bearer token and lets only the admin role through.
func AdminOnly(auth TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get the Authorization header
		tokenString := c.Get(fiber.HeaderAuthorization)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
		}

		// Ensure it's a Bearer token
		tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token format"})
		}

		role, err := auth.ValidateToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}
		if role != "admin" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied. Admins only."})
		}

		c.Locals("role", role)
		return c.Next()
	}
}
