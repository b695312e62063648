package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// statusFor maps domain error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": "..."}. Server-side failures are logged
// and reported with a generic message.
func writeError(c echo.Context, stage string, err error) error {
	status := statusFor(err)
	metricsFrom(c).SetErrorStage(stage)

	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "service temporarily unavailable"
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusUnauthorized:
		msg = domain.ErrInvalidCredentials.Error()
	}
	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"route":  c.Path(),
			"method": c.Request().Method,
			"stage":  stage,
		}).WithError(err).Error("request failed")
	}
	return c.JSON(status, errorResponse{Error: msg})
}

func unauthorized(c echo.Context, err error) error {
	metricsFrom(c).SetErrorStage("auth")
	log.WithField("route", c.Path()).WithError(err).Debug("rejected credentials")
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
}
