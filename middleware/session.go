// middleware/session.go
package middleware

import (
	"log"

	"link-auction-claims/models"
	"link-auction-claims/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SessionContextMiddleware extracts the session id and identity signals the
// Gateway forwards, resolves them into a normalized Identity and attaches
// both to the request context. A missing session id gets a fresh one minted
// and echoed back so the browser can stick to it.
func SessionContextMiddleware(resolver *services.IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Get("X-Session-ID")
		if sessionID == "" {
			sessionID = uuid.NewString()
			c.Set("X-Session-ID", sessionID)
		}

		web := services.IdentitySignal{
			WalletAddress:  c.Get("X-Wallet-Address"),
			SocialUsername: c.Get("X-Social-Username"),
			VerifiedUserID: c.Get("X-Verified-User-ID"),
		}
		host := services.IdentitySignal{
			HostUserID:     c.Get("X-Host-User-ID"),
			SocialUsername: c.Get("X-Host-Social-Username"),
			WalletAddress:  c.Get("X-Host-Wallet-Address"),
			Origin:         models.OriginChannelMiniApp,
		}

		ident := resolver.Resolve(c.Context(), web, host)

		c.Locals("session_id", sessionID)
		c.Locals("identity", ident)

		if ident.Usable() {
			field, value := ident.PrimaryField()
			log.Printf("👤 [SESSION] session=%.8s… primary=%s:%s origin=%s | Path: %s",
				sessionID, field, value, ident.Origin, c.Path())
		}

		return c.Next()
	}
}
