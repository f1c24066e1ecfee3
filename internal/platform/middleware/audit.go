package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// TargetUserHeader lets an admin act on another user's data documents.
const TargetUserHeader = "X-Target-User-Id"

// AuditEntry records who touched patient data, when, and on whose behalf.
type AuditEntry struct {
	UserID       string
	Role         string
	TargetUserID string
	Route        string
	Action       string
	Method       string
	Path         string
	IPAddress    string
	RequestID    string
	StatusCode   int
	Impersonated bool
	Timestamp    time.Time
}

// AuditRecorder persists audit entries. Without one the middleware only logs.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs an access entry for routes that read or write tenant data and
// emergency requests. It runs after auth.Middleware so the caller is known.
// Admin calls that target another user's documents are logged at warn.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Route:      c.Path(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				StatusCode: c.Response().Status,
			}
			if appErr, ok := apperr.As(err); ok {
				entry.StatusCode = appErr.Status
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if id := auth.IdentityFromContext(req.Context()); id != nil {
				entry.UserID = id.ID.String()
				entry.Role = id.Role
			}
			entry.TargetUserID = targetUserID(c)
			entry.Impersonated = entry.TargetUserID != "" && entry.TargetUserID != entry.UserID

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.Impersonated {
				evt = logger.Warn()
			}
			evt.
				Str("type", "data_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("target_user_id", entry.TargetUserID).
				Str("route", entry.Route).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("remote_ip", entry.IPAddress).
				Bool("impersonated", entry.Impersonated).
				Msg("data access")

			return err
		}
	}
}

// targetUserID reads the requested owner from the query or header. Body
// values are not inspected here; the body stream belongs to the handler.
func targetUserID(c echo.Context) string {
	if v := c.QueryParam("userId"); v != "" {
		return v
	}
	return c.Request().Header.Get(TargetUserHeader)
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "write"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
