package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireActorRejectsMissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/listings", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	m := NewActorMiddleware()
	handler := m.RequireActor(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestRequireActorSetsUID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/listings", nil)
	req.Header.Set("X-Actor-ID", "user-42")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	m := NewActorMiddleware()
	handler := m.RequireActor(func(c echo.Context) error {
		assert.Equal(t, "user-42", c.Get("uid"))
		return c.NoContent(http.StatusOK)
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
