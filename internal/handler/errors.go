package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sinew-backend/internal/client"
	"sinew-backend/internal/repository"
	"sinew-backend/internal/service"

	"github.com/labstack/echo/v4"
)

// toHTTPError maps service errors onto status codes. Unknown errors become a
// 500 so provider webhooks are retried.
func toHTTPError(c echo.Context, err error) error {
	var rej *service.ProviderRejectionError
	var ppErr *client.PaypalAPIError
	var mpErr *client.MercadoPagoAPIError

	switch {
	case errors.As(err, &rej):
		return echo.NewHTTPError(http.StatusPaymentRequired, rej.Error())
	case errors.Is(err, service.ErrUnknownProvider),
		errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrMissingPaymentID),
		errors.Is(err, service.ErrFreeProduct),
		errors.Is(err, service.ErrInvalidResetToken):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrCourseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrTokenNotFound):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrTokenUsed),
		errors.Is(err, service.ErrTokenExpired):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidEmail):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &ppErr) && ppErr.StatusCode == http.StatusNotFound,
		client.IsMercadoPagoNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, "payment not found at provider")
	case errors.As(err, &ppErr), errors.As(err, &mpErr):
		slog.ErrorContext(c.Request().Context(), "payment provider error", "path", c.Path(), "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "payment provider error")
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	slog.ErrorContext(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
