package api

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	headerUser      = "X-User"
	headerUserID    = "X-User-Id"
	headerCreatedBy = "X-Created-By"
)

// Middleware returns the transport middleware stack in the order it must run.
func Middleware(corsOrigin string) []echo.MiddlewareFunc {
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	return []echo.MiddlewareFunc{
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{corsOrigin},
			AllowHeaders: []string{
				echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
				headerUser, headerUserID, headerCreatedBy, headerIdempotencyKey,
			},
		}),
		middleware.Decompress(),
		middleware.BodyLimit("64K"),
	}
}

// headerActor is the caller identity from X-User, or fallback when absent.
func headerActor(c echo.Context, fallback string) string {
	if u := strings.TrimSpace(c.Request().Header.Get(headerUser)); u != "" {
		return u
	}
	return fallback
}

// identityHints lists caller identity headers in priority order for creator resolution.
func identityHints(c echo.Context) []string {
	h := c.Request().Header
	return []string{h.Get(headerUser), h.Get(headerUserID), h.Get(headerCreatedBy)}
}
