package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// RequestTimeout puts a deadline on the request context. Repositories and the
// Mevo client take their context from the request, so an expired deadline
// surfaces as context.DeadlineExceeded and is reported as 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == context.DeadlineExceeded {
				if _, ok := apperr.As(err); !ok {
					return apperr.New(http.StatusGatewayTimeout, "timeout", "request processing exceeded the allowed time")
				}
			}
			return err
		}
	}
}
