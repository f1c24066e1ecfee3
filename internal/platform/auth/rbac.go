package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// RequireRole returns middleware that checks the caller has one of roles.
// It must run after Middleware.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFromContext(c.Request().Context())
			if id == nil {
				return apperr.Unauthorized("missing-token", "authentication required")
			}
			for _, r := range roles {
				if id.Role == r {
					return next(c)
				}
			}
			return apperr.Forbidden("forbidden",
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

func RequireAdmin() echo.MiddlewareFunc { return RequireRole(RoleAdmin) }

// RequireStaff admits admin, doctor, nurse and receptionist callers.
func RequireStaff() echo.MiddlewareFunc { return RequireRole(StaffRoles...) }

func RequirePatient() echo.MiddlewareFunc { return RequireRole(RolePatient) }
