package tenantdata

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

const targetUserHeader = "X-Target-User-Id"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the data endpoints. mw authenticates the caller and
// runs before the role checks.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	writers := append(append([]echo.MiddlewareFunc{}, mw...), denyPatients)
	patient := append(append([]echo.MiddlewareFunc{}, mw...), auth.RequirePatient())

	e.GET("/all", h.GetAll, mw...)
	for _, t := range DataTypes {
		t := t
		e.GET("/"+string(t), func(c echo.Context) error { return h.GetType(c, t) }, mw...)
		e.POST("/"+string(t)+"/save", func(c echo.Context) error { return h.SaveType(c, t) }, writers...)
	}
	e.POST("/saveAll", h.SaveAll, writers...)

	e.POST("/patient/appointments/request", h.RequestAppointment, patient...)
}

// denyPatients refuses writes before the body is read, so patients always
// see patient-readonly.
func denyPatients(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller := auth.IdentityFromContext(c.Request().Context())
		if caller == nil {
			return apperr.Unauthorized("missing-token", "authentication required")
		}
		if !caller.IsStaff() {
			return apperr.Forbidden("patient-readonly", "patients cannot modify clinic data directly")
		}
		return next(c)
	}
}

func (h *Handler) GetAll(c echo.Context) error {
	caller := auth.IdentityFromContext(c.Request().Context())
	b, err := h.svc.GetAll(c.Request().Context(), caller, requestedUser(c, nil))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": b})
}

func (h *Handler) GetType(c echo.Context, t DataType) error {
	caller := auth.IdentityFromContext(c.Request().Context())
	payload, err := h.svc.GetType(c.Request().Context(), caller, requestedUser(c, nil), t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": payload})
}

func (h *Handler) SaveAll(c echo.Context) error {
	body, err := readObject(c)
	if err != nil {
		return err
	}

	docs := make(map[DataType][]json.RawMessage)
	for _, t := range DataTypes {
		raw, ok := body[string(t)]
		if !ok {
			continue
		}
		payload, err := decodeList(raw, t)
		if err != nil {
			return err
		}
		docs[t] = payload
	}

	caller := auth.IdentityFromContext(c.Request().Context())
	saved, err := h.svc.SaveAll(c.Request().Context(), caller, requestedUser(c, body), docs)
	if err != nil {
		return err
	}
	if saved == nil {
		saved = []DataType{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "saved": saved})
}

// SaveType accepts the list itself, {"data": [...]} or {"<type>": [...]}.
func (h *Handler) SaveType(c echo.Context, t DataType) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)

	var (
		body    map[string]json.RawMessage
		payload []json.RawMessage
	)
	switch {
	case len(raw) > 0 && raw[0] == '[':
		if payload, err = decodeList(raw, t); err != nil {
			return err
		}
	default:
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				return apperr.BadRequest("invalid-body", "request body must be a JSON object or array")
			}
		}
		list, ok := body["data"]
		if !ok {
			list, ok = body[string(t)]
		}
		if !ok {
			return apperr.BadRequest("invalid-body", "expected a data list")
		}
		if payload, err = decodeList(list, t); err != nil {
			return err
		}
	}

	caller := auth.IdentityFromContext(c.Request().Context())
	doc, err := h.svc.SaveType(c.Request().Context(), caller, requestedUser(c, body), t, payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"dataType":  t,
		"count":     len(doc.Payload),
		"updatedAt": doc.UpdatedAt,
	})
}

func (h *Handler) RequestAppointment(c echo.Context) error {
	var req AppointmentRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid-body", "invalid appointment request")
	}
	caller := auth.IdentityFromContext(c.Request().Context())
	appt, doctor, err := h.svc.RequestAppointment(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "appointment": appt, "doctor": doctor})
}

// requestedUser reads the target owner from the query, header or body, in
// that order.
func requestedUser(c echo.Context, body map[string]json.RawMessage) string {
	if v := strings.TrimSpace(c.QueryParam("userId")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Request().Header.Get(targetUserHeader)); v != "" {
		return v
	}
	if raw, ok := body["userId"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func readObject(c echo.Context) (map[string]json.RawMessage, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	body := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.BadRequest("invalid-body", "request body must be a JSON object")
	}
	return body, nil
}

func decodeList(raw json.RawMessage, t DataType) ([]json.RawMessage, error) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return []json.RawMessage{}, nil
	}
	var payload []json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.BadRequest("invalid-body", string(t)+" must be a list")
	}
	if payload == nil {
		payload = []json.RawMessage{}
	}
	return payload, nil
}
