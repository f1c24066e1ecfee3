package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// StripPrefix removes the first matching mount prefix from the request path
// so that "/.netlify/functions/api/auth/login" and "/api/auth/login" route
// like "/auth/login". Register it with echo's Pre.
func StripPrefix(prefixes ...string) echo.MiddlewareFunc {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = "/" + strings.Trim(p, "/")
		if p != "/" {
			clean = append(clean, p)
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			for _, p := range clean {
				if path == p || strings.HasPrefix(path, p+"/") {
					stripped := strings.TrimPrefix(path, p)
					if stripped == "" {
						stripped = "/"
					}
					req.URL.Path = stripped
					req.URL.RawPath = ""
					break
				}
			}
			return next(c)
		}
	}
}
