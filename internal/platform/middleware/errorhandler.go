package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// ErrorHandler renders every error as {success:false, code, message}. It is
// installed as echo's HTTPErrorHandler.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		appErr := classify(err, c)
		if appErr.Status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
				Str("code", appErr.Code).
				Msg("request failed")
		}

		body := map[string]interface{}{
			"success": false,
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		for k, v := range appErr.Details {
			body[k] = v
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(appErr.Status)
		} else {
			werr = c.JSON(appErr.Status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func classify(err error, c echo.Context) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return apperr.NotFound("not-found",
				fmt.Sprintf("route not found: %s %s", c.Request().Method, c.Request().URL.Path))
		case http.StatusTooManyRequests:
			return apperr.New(he.Code, "rate-limited", "too many requests")
		case http.StatusRequestEntityTooLarge:
			return apperr.New(he.Code, "payload-too-large", "request body too large")
		case http.StatusUnsupportedMediaType, http.StatusBadRequest:
			return apperr.BadRequest("invalid-body", fmt.Sprintf("%v", he.Message))
		}
		return apperr.New(he.Code, codeForStatus(he.Code), fmt.Sprintf("%v", he.Message))
	}

	return apperr.Internal("internal server error", err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "invalid-token"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadGateway:
		return "upstream-error"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	if status >= 500 {
		return "internal-error"
	}
	return "bad-request"
}
