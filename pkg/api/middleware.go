package api

import (
	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware for the response headers every coachd
// endpoint carries. Responses embed private conversation content, so
// intermediaries are told not to store them.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("Cache-Control", "no-store")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			return next(c)
		}
	}
}
