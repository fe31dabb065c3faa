package handler // handler exposes the reservation engine over HTTP

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/service"
)

// requestTimeout bounds the service call behind each request.
const requestTimeout = 5 * time.Second

// errUnauthenticated is returned when no caller email reached the handler.
var errUnauthenticated = errors.New("unauthenticated")

// caller resolves the authenticated caller set by middleware.JWTAuth.
func caller(c echo.Context) (service.Caller, error) {
	email := middleware.CallerEmail(c)
	if email == "" {
		return service.Caller{}, errUnauthenticated
	}
	return service.Caller{Email: email}, nil
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusFor maps the service error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes {"error": msg}. Infrastructure errors are logged and hidden
// from the client.
func fail(c echo.Context, log logrus.FieldLogger, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	body := echo.Map{"error": err.Error()}
	var ce *service.ConflictError
	if errors.As(err, &ce) {
		body["table_id"] = ce.TableID
		body["table_code"] = ce.TableCode
		body["reservation_id"] = ce.ReservationID
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
