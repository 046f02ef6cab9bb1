package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/logging"
	"github.com/govlink/govlink/internal/models"
)

type errorBody struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Errors  []string      `json:"errors,omitempty"`
	Status  models.Status `json:"status,omitempty"`
}

// ErrorHandler renders every failure in the same envelope. Internal causes
// are logged and replaced with a generic message.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, body := render(err)
	if code >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "status", code, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", err)
	}
}

func render(err error) (int, errorBody) {
	if he, ok := err.(*echo.HTTPError); ok {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = apperr.MsgInternal
		}
		return he.Code, errorBody{Message: msg}
	}

	ae := apperr.As(err)
	code := ae.HTTPStatus()
	body := errorBody{Message: ae.Message, Errors: ae.Fields, Status: ae.Status}
	if code >= http.StatusInternalServerError {
		body = errorBody{Message: apperr.MsgInternal}
	}
	return code, body
}
