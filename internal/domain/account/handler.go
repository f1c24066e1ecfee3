package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public, session and admin endpoints. authn
// authenticates the caller; limiter throttles the credential endpoints and
// may be nil.
func (h *Handler) RegisterRoutes(e *echo.Echo, authn echo.MiddlewareFunc, limiter echo.MiddlewareFunc) {
	var public []echo.MiddlewareFunc
	if limiter != nil {
		public = append(public, limiter)
	}
	admin := []echo.MiddlewareFunc{authn, auth.RequireAdmin()}

	e.GET("/public/doctors", h.Directory)

	e.POST("/auth/register", h.Register, public...)
	e.POST("/auth/login", h.Login, public...)
	e.GET("/auth/me", h.Me, authn)
	e.POST("/auth/ping", h.Ping, authn)
	e.POST("/auth/logout", h.Logout, authn)

	e.GET("/admin/users/count", h.Count, admin...)
	e.GET("/admin/users", h.List, admin...)
}

func (h *Handler) Directory(c echo.Context) error {
	doctors, err := h.svc.Directory(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "doctors": doctors})
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid-body", "request body must be a JSON object")
	}
	session, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "user": session.User, "token": session.Token})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid-body", "request body must be a JSON object")
	}
	session, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": session.User, "token": session.Token})
}

func (h *Handler) Me(c echo.Context) error {
	caller := auth.IdentityFromContext(c.Request().Context())
	if caller == nil {
		return apperr.Unauthorized("missing-token", "authentication required")
	}
	u, err := h.svc.Me(c.Request().Context(), caller.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u})
}

// Ping is called periodically by open clients. The auth middleware already
// touched last_seen_at; the response carries a fresh token.
func (h *Handler) Ping(c echo.Context) error {
	caller := auth.IdentityFromContext(c.Request().Context())
	if caller == nil {
		return apperr.Unauthorized("missing-token", "authentication required")
	}
	session, err := h.svc.Refresh(c.Request().Context(), caller.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": session.User, "token": session.Token})
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), auth.ClaimsFromContext(c.Request().Context())); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *Handler) Count(c echo.Context) error {
	n, err := h.svc.Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": n})
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	users, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p).WithLinks(c.Path()))
}
