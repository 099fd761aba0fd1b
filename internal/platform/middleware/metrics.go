package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/telemetry"
)

// Metrics records in-flight count, total and latency per route template.
// It must sit inside Logger so the status reflects the error handler.
func Metrics(m *telemetry.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.HTTPStarted()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPFinished(c.Request().Method, route, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
