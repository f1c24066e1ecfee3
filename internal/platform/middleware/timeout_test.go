package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/all", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected context to have a deadline")
		}
		called = true
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestTimeout(5 * time.Second)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestTimeout_MapsDeadlineTo504(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/all", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		<-c.Request().Context().Done()
		return fmt.Errorf("load documents: %w", c.Request().Context().Err())
	}

	err := RequestTimeout(20 * time.Millisecond)(handler)(c)
	appErr, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr.Error, got %T (%v)", err, err)
	}
	if appErr.Status != http.StatusGatewayTimeout || appErr.Code != "timeout" {
		t.Errorf("expected 504 timeout, got %d %s", appErr.Status, appErr.Code)
	}
}

func TestRequestTimeout_KeepsClassifiedErrors(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/all", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return apperr.Forbidden("forbidden", "nope")
	}

	err := RequestTimeout(5 * time.Second)(handler)(c)
	if !apperr.HasCode(err, "forbidden") {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
