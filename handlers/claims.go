// handlers/claims.go
package handlers

import (
	"link-auction-claims/middleware"
	"link-auction-claims/services"

	"github.com/gofiber/fiber/v2"
)

func SetupClaimRoutes(app *fiber.App, claimService *services.ClaimService, resolver *services.IdentityResolver) {
	// All claim routes need the resolved session/identity context
	secured := app.Group("/s", middleware.SessionContextMiddleware(resolver))

	secured.Get("/eligibility/:kind", claimService.GetEligibility)
	secured.Get("/popup", claimService.GetPopupState)

	// Claim flow lifecycle
	secured.Post("/flows/:kind/open", claimService.OpenFlow)
	secured.Post("/flows/:kind/identity", claimService.NotifyIdentity)
	secured.Get("/flows/:kind", claimService.GetFlow)
	secured.Post("/flows/:kind/claim", claimService.SubmitClaim)
	secured.Post("/flows/:kind/dismiss", claimService.DismissFlow)

	// QR pass-through — identity optional but recorded when present
	app.Get("/redirect", middleware.SessionContextMiddleware(resolver), claimService.Redirect)
}
