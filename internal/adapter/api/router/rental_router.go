package router

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/adapter/api/handler"
	"tradepost/internal/adapter/api/middleware"
)

func SetupRentalRoutes(e *echo.Echo, rentalHandler *handler.RentalHandler, actorMiddleware *middleware.ActorMiddleware) {
	rentals := e.Group("/v1/rentals")

	rentals.POST("", rentalHandler.CreateRental, actorMiddleware.RequireActor)
	rentals.POST("/:id/accept", rentalHandler.AcceptRental, actorMiddleware.RequireActor)
	rentals.POST("/:id/contracts/:contractId/end", rentalHandler.EndRental, actorMiddleware.RequireActor)
}
