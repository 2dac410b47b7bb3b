package handler

import (
	"net/http"
	"sinew-backend/internal/dto"
	"sinew-backend/internal/model"
	"sinew-backend/internal/service"
	"strings"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	checkoutService service.CheckoutService
}

func NewOrderHandler(checkoutService service.CheckoutService) *OrderHandler {
	return &OrderHandler{
		checkoutService: checkoutService,
	}
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	var product model.ProductRef
	switch strings.ToLower(req.ProductType) {
	case "", string(model.ProductKindBook):
		product = model.BookRef()
	case string(model.ProductKindCourse):
		if strings.TrimSpace(req.Slug) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "slug is required for courses")
		}
		product = model.CourseRef(req.Slug)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "productType must be book or course")
	}

	cart := &model.Cart{
		Product:    product,
		Title:      strings.TrimSpace(req.Title),
		Currency:   strings.TrimSpace(req.Currency),
		BuyerEmail: req.BuyerEmail,
		BuyerName:  strings.TrimSpace(req.BuyerName),
	}
	if req.UnitAmount != nil {
		if req.UnitAmount.IsNegative() {
			return echo.NewHTTPError(http.StatusBadRequest, "unitAmount must be positive")
		}
		cart.UnitAmount = *req.UnitAmount
	}

	handle, err := h.checkoutService.CreateOrder(ctx, req.Provider, cart)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusCreated, dto.NewCheckoutResponse(handle))
}
