package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const actorHeader = "X-Actor-ID"

// ActorMiddleware resolves the acting user for a request. Identity is
// established upstream by the gateway, which forwards the verified user id
// in the X-Actor-ID header.
type ActorMiddleware struct{}

func NewActorMiddleware() *ActorMiddleware {
	return &ActorMiddleware{}
}

func (m *ActorMiddleware) RequireActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID := c.Request().Header.Get(actorHeader)
		if actorID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "X-Actor-ID header is required")
		}

		c.Set("uid", actorID)
		return next(c)
	}
}
