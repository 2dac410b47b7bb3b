package handler

import (
	"io"
	"net/http"
	"sinew-backend/internal/dto"
	"sinew-backend/internal/middleware"
	"sinew-backend/internal/service"

	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

type PaypalHandler struct {
	paypalService service.PaypalService
}

func NewPaypalHandler(paypalService service.PaypalService) *PaypalHandler {
	return &PaypalHandler{
		paypalService: paypalService,
	}
}

func (h *PaypalHandler) CaptureOrder(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.Param("id")
	if orderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing order id")
	}

	var req dto.CaptureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	hint := &service.BuyerHint{
		Email: req.Email,
		Name:  req.Name,
	}
	// a logged in buyer gets the entitlement on their own account
	if email := middleware.Email(c); email != "" {
		hint.Email = email
		hint.Authoritative = true
	}

	result, err := h.paypalService.CaptureOrder(ctx, orderID, hint)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, dto.NewFulfillmentResponse(result))
}

func (h *PaypalHandler) PayPalWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if err := h.paypalService.HandleWebhook(ctx, c.Request().Header, body); err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, &dto.WebhookResponse{Received: true})
}
