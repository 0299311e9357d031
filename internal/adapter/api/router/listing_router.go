package router

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/adapter/api/handler"
	"tradepost/internal/adapter/api/middleware"
)

func SetupListingRoutes(e *echo.Echo, listingHandler *handler.ListingHandler, actorMiddleware *middleware.ActorMiddleware) {
	listings := e.Group("/v1/listings")

	// Public routes
	listings.GET("", listingHandler.ListListings)
	listings.GET("/:id", listingHandler.GetListing)
	listings.GET("/:id/bids", listingHandler.ListBids)
	listings.GET("/:id/settlement", listingHandler.GetSettlement)

	// Protected routes
	listings.POST("", listingHandler.CreateListing, actorMiddleware.RequireActor)
	listings.POST("/:id/cancel", listingHandler.CancelListing, actorMiddleware.RequireActor)
}
