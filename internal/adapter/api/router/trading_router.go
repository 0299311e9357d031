package router

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/adapter/api/handler"
	"tradepost/internal/adapter/api/middleware"
)

func SetupTradingRoutes(e *echo.Echo, tradingHandler *handler.TradingHandler, actorMiddleware *middleware.ActorMiddleware) {
	listings := e.Group("/v1/listings")

	listings.POST("/:id/bids", tradingHandler.PlaceBid, actorMiddleware.RequireActor)
	listings.POST("/:id/buy", tradingHandler.BuyNow, actorMiddleware.RequireActor)
	listings.POST("/:id/purchase", tradingHandler.PurchaseBundle, actorMiddleware.RequireActor)
}
