package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// IdentityLoader re-reads the caller's user row for a token subject. It
// returns an apperr "user-not-found" error when the row is gone.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, userID uuid.UUID) (*Identity, error)
}

type MiddlewareConfig struct {
	Tokens *TokenManager
	Loader IdentityLoader
	// Revocations is optional; nil means logout is client-side only.
	Revocations RevocationStore
}

// Middleware authenticates the bearer token and stores the caller's Identity
// on the request context.
func Middleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}

			claims, err := cfg.Tokens.Parse(tokenStr)
			if err != nil {
				return apperr.Unauthorized("invalid-token", "invalid or expired token")
			}

			ctx := c.Request().Context()
			if cfg.Revocations != nil && claims.ID != "" {
				revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					return apperr.Internal("check token revocation", err)
				}
				if revoked {
					return apperr.Unauthorized("token-revoked", "session has been logged out")
				}
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return apperr.Unauthorized("invalid-token", "token subject is not a user id")
			}

			id, err := cfg.Loader.LoadIdentity(ctx, userID)
			if err != nil {
				return err
			}

			ctx = WithIdentity(ctx, id)
			ctx = WithClaims(ctx, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", id.ID.String())

			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthorized("missing-token", "missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperr.Unauthorized("invalid-token", "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}
