package middleware

import (
	"github.com/labstack/echo/v4"
)

// RequestIDKey is the echo context key holding the request ID.
const RequestIDKey = "request_id"

// RequestID tags each request with an ID, reusing an inbound X-Request-Id when
// present. The ID is kept in the echo context for logging only; it is neither
// forwarded upstream nor echoed in the response.
func RequestID(generator func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = generator()
			}
			c.Set(RequestIDKey, rid)
			return next(c)
		}
	}
}

// requestID returns the ID stored by RequestID, or "" when it did not run.
func requestID(c echo.Context) string {
	rid, _ := c.Get(RequestIDKey).(string)
	return rid
}
