package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nurox-dashboard/internal/ids"
)

const RequestIDHeader = "X-Request-ID"

// RequestID assigns a ULID to every request unless the caller sent one.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" || len(rid) > 128 {
				rid = ids.New()
			}
			c.Set(ctxRequestID, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}
