// Package adminhttp is the operator-facing admin surface: liveness and
// Prometheus scraping only. It deliberately does not expose create,
// start, destroy, or run — that RPC transport stays out of scope, and
// re-adding it here under a different path would reintroduce exactly
// what was excluded.
package adminhttp

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sandboxrun/epicbox/internal/metrics"
)

// NewServer builds an *echo.Echo exposing GET /healthz and GET /metrics.
func NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", healthz)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return e
}

func healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
