package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sinew-backend/internal/client"
	"sinew-backend/internal/dto"
	"sinew-backend/internal/model"
	"sinew-backend/internal/service"
	"strings"

	"github.com/labstack/echo/v4"
)

type MercadoPagoHandler struct {
	mpService   service.MercadoPagoService
	frontendURL string
}

func NewMercadoPagoHandler(mpService service.MercadoPagoService, frontendURL string) *MercadoPagoHandler {
	return &MercadoPagoHandler{
		mpService:   mpService,
		frontendURL: frontendURL,
	}
}

// Return is hit by the buyer's browser after checkout. It always redirects.
func (h *MercadoPagoHandler) Return(c echo.Context) error {
	ctx := c.Request().Context()

	paymentID := c.QueryParam("payment_id")
	if paymentID == "" || paymentID == "null" {
		paymentID = c.QueryParam("collection_id")
	}
	if paymentID == "" || paymentID == "null" {
		return c.Redirect(http.StatusFound, h.thanksURL("not_approved"))
	}

	result, err := h.mpService.ConfirmPayment(ctx, paymentID)
	if err != nil {
		var rej *service.ProviderRejectionError
		if errors.As(err, &rej) {
			status := "not_approved"
			if rej.Status == "pending" || rej.Status == "in_process" {
				status = "pending"
			}
			return c.Redirect(http.StatusFound, h.thanksURL(status))
		}
		slog.ErrorContext(ctx, "mercadopago return failed", "payment_id", paymentID, "error", err)
		return c.Redirect(http.StatusFound, h.thanksURL("error"))
	}

	return c.Redirect(http.StatusFound, result.RedirectURL)
}

func (h *MercadoPagoHandler) thanksURL(status string) string {
	return h.frontendURL + "/gracias?status=" + url.QueryEscape(status)
}

// Webhook accepts both GET and POST deliveries. Anything that is not a
// provider or store failure is acknowledged with 200.
func (h *MercadoPagoHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := parseMPNotification(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.mpService.VerifySignature(n); err != nil {
		slog.WarnContext(ctx, "mercadopago webhook signature rejected", "topic", n.Topic, "resource_id", n.ID)
		return toHTTPError(c, err)
	}

	out, err := h.mpService.HandleNotification(ctx, n)
	if client.IsMercadoPagoNotFound(err) {
		// test notifications name resources that never exist; redelivery cannot help
		slog.WarnContext(ctx, "mercadopago webhook resource not found", "topic", n.Topic, "resource_id", n.ID, "error", err)
		return c.JSON(http.StatusOK, &dto.WebhookResponse{Received: true})
	}
	if err != nil {
		return toHTTPError(c, err)
	}

	slog.InfoContext(ctx, "mercadopago webhook handled",
		"topic", out.Topic, "resource_id", out.ID, "fulfilled", out.Fulfilled, "skipped", out.Skipped, "ignored", out.Ignored)
	return c.JSON(http.StatusOK, &dto.WebhookResponse{Received: true})
}

func parseMPNotification(c echo.Context) (*model.MPNotification, error) {
	req := c.Request()
	n := &model.MPNotification{
		Topic:     strings.ToLower(firstNonEmpty(c.QueryParam("topic"), c.QueryParam("type"))),
		ID:        firstNonEmpty(c.QueryParam("data.id"), c.QueryParam("id")),
		RequestID: req.Header.Get("x-request-id"),
		Signature: req.Header.Get("x-signature"),
	}

	if req.Body != nil && req.Method == http.MethodPost {
		raw, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
		if err != nil {
			return nil, errors.New("unreadable body")
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			var body dto.MPWebhookBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return nil, errors.New("invalid json body")
			}
			n.Topic = strings.ToLower(firstNonEmpty(n.Topic, body.Type, body.Topic))
			n.ID = firstNonEmpty(n.ID, body.Data.ID, resourceID(body.Resource))
		}
	}

	return n, nil
}

// resourceID accepts a bare id or a resource URL ending in the id.
func resourceID(resource string) string {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return ""
	}
	if u, err := url.Parse(resource); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return resource
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
