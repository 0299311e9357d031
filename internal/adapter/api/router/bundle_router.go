package router

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/adapter/api/handler"
	"tradepost/internal/adapter/api/middleware"
)

func SetupBundleRoutes(e *echo.Echo, bundleHandler *handler.BundleHandler, actorMiddleware *middleware.ActorMiddleware) {
	bundles := e.Group("/v1/bundles")

	bundles.POST("", bundleHandler.CreateBundle, actorMiddleware.RequireActor)
}
