package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/kennyklee/jimmy-rocks/domain"
)

// errDuplicateRequest is returned when an Idempotency-Key was already used.
var errDuplicateRequest = errors.New("duplicate request")

// errorHandler renders every handler error as {"error", "details"?}. Domain
// errors keep their message; anything unexpected is logged and hidden.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := errorResponseFor(err, c)
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"path":   c.Request().URL.Path,
			}).Error("request failed")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.WithError(err).Warn("write error response")
		}
	}
}

func errorResponseFor(err error, c echo.Context) (int, errorResponse) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return statusForKind(derr.Kind), errorResponse{Error: derr.Message, Details: derr.Details}
	}
	if errors.Is(err, errDuplicateRequest) {
		return http.StatusConflict, errorResponse{Error: "Duplicate request"}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return http.StatusNotFound, errorResponse{Error: fmt.Sprintf("Route not found: %s %s", c.Request().Method, c.Request().URL.RequestURI())}
		}
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, errorResponse{Error: msg}
	}
	return http.StatusInternalServerError, errorResponse{Error: "Internal server error"}
}

func statusForKind(kind error) int {
	switch kind {
	case domain.ErrInvalidInput, domain.ErrInvalidColumn:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
