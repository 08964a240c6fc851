// middleware/gateway.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the service token the Gateway attaches to
// every request, from either the Authorization header or X-Service-Token.
func GatewayAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("CLAIM_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ CLAIM_SERVICE_TOKEN is not set — service cannot authenticate Gateway")
	}

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			// Fall back to "Bearer <token>" (or a raw Authorization value)
			token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}

		if token == "" {
			log.Printf("🚫 [GATEWAY_AUTH] Missing service token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		if token != expectedToken {
			log.Printf("❌ [GATEWAY_AUTH] Invalid service token for %s (got prefix: %.10s...)", c.Path(), token)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}
