package emergency

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient and staff emergency endpoints behind
// authn.
func (h *Handler) RegisterRoutes(e *echo.Echo, authn echo.MiddlewareFunc) {
	patient := []echo.MiddlewareFunc{authn, auth.RequirePatient()}
	staff := []echo.MiddlewareFunc{authn, auth.RequireStaff()}

	e.POST("/patient/emergency/request", h.Request, patient...)
	e.GET("/patient/emergency/latest", h.Latest, patient...)

	e.GET("/doctor/emergency/requests", h.ListActive, staff...)
	e.POST("/doctor/emergency/:id/start-video", h.StartVideo, staff...)
	e.POST("/doctor/emergency/:id/resolve", h.Resolve, staff...)
}

func (h *Handler) Request(c echo.Context) error {
	var body HelpRequest
	if err := c.Bind(&body); err != nil {
		return apperr.BadRequest("invalid-body", "request body must be a JSON object")
	}
	caller := auth.IdentityFromContext(c.Request().Context())
	r, err := h.svc.Request(c.Request().Context(), caller, body.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r})
}

func (h *Handler) Latest(c echo.Context) error {
	caller := auth.IdentityFromContext(c.Request().Context())
	r, err := h.svc.Latest(c.Request().Context(), caller.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r})
}

func (h *Handler) ListActive(c echo.Context) error {
	list, err := h.svc.ListActive(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "requests": list})
}

func (h *Handler) StartVideo(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	var body StartVideoRequest
	if err := c.Bind(&body); err != nil {
		return apperr.BadRequest("invalid-body", "request body must be a JSON object")
	}
	caller := auth.IdentityFromContext(c.Request().Context())
	r, err := h.svc.StartVideo(c.Request().Context(), id, caller, body.CallURL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r})
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	caller := auth.IdentityFromContext(c.Request().Context())
	r, err := h.svc.Resolve(c.Request().Context(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r})
}

// Ids that are not UUIDs cannot exist, so they are reported as not found.
func requestID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.NotFound("not-found", "emergency request not found")
	}
	return id, nil
}
