// handlers/winners.go
package handlers

import (
	"link-auction-claims/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWinnerRoutes(app *fiber.App, auctionService *services.AuctionService) {
	// 🔓 Public routes — no user context, but still behind Gateway auth
	app.Get("/winners", auctionService.GetWinners)
	app.Get("/winners/current", auctionService.GetCurrentWinner)
}
