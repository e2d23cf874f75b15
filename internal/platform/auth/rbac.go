package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HasRole reports whether the caller holds one of roles. Admins hold every role.
func HasRole(ctx context.Context, roles ...string) bool {
	userRoles := RolesFromContext(ctx)
	for _, required := range roles {
		for _, has := range userRoles {
			if has == required || has == RoleAdmin {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
