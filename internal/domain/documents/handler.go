package documents

import (
	"net/http"

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

// RegisterRoutes mounts the Mevo passthroughs. Only staff issue documents.
func (h *Handler) RegisterRoutes(e *echo.Echo, authn echo.MiddlewareFunc) {
	staff := []echo.MiddlewareFunc{authn, auth.RequireStaff()}

	e.POST("/integrations/mevo/signature/session", h.SignatureSession, staff...)
	e.POST("/integrations/mevo/emit", h.Emit, staff...)
	e.GET("/integrations/mevo/documents", h.List, staff...)
}

func (h *Handler) SignatureSession(c echo.Context) error {
	var body SignatureRequest
	if err := c.Bind(&body); err != nil {
		return apperr.BadRequest("invalid-body", "request body must be a JSON object")
	}
	session, err := h.svc.SignatureSession(c.Request().Context(), body.Provider)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "session": session})
}

func (h *Handler) Emit(c echo.Context) error {
	var body EmitRequest
	if err := c.Bind(&body); err != nil {
		return apperr.BadRequest("invalid-body", "request body must be a JSON object")
	}
	caller := auth.IdentityFromContext(c.Request().Context())
	doc, mode, err := h.svc.Emit(c.Request().Context(), caller, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "document": doc, "mode": mode})
}

func (h *Handler) List(c echo.Context) error {
	caller := auth.IdentityFromContext(c.Request().Context())
	docs, err := h.svc.List(c.Request().Context(), caller, Filter{
		PrescriptionID: c.QueryParam("prescriptionId"),
		DocumentType:   c.QueryParam("documentType"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "documents": docs})
}
