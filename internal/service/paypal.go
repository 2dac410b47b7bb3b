package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sinew-backend/internal/client"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"

	"github.com/shopspring/decimal"
)

const paypalIssueAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

type PaypalService interface {
	CreateOrder(ctx context.Context, cart *model.Cart) (*model.CheckoutHandle, error)
	// CaptureOrder is safe to call more than once for the same order.
	CaptureOrder(ctx context.Context, orderID string, buyer *BuyerHint) (*model.FulfillmentResult, error)
	HandleWebhook(ctx context.Context, headers http.Header, body []byte) error
}

// BuyerHint carries buyer details known to the caller. When Authoritative is
// set (a logged in account) they win over the PayPal payer; otherwise they
// only fill gaps.
type BuyerHint struct {
	Email         string
	Name          string
	Authoritative bool
}

type paypalServiceImpl struct {
	paypalClient     client.PaypalClient
	fulfillment      FulfillmentService
	webhookEventRepo repository.WebhookEventRepository
	metrics          metrics.Recorder
	frontendURL      string
	verifyWebhooks   bool
}

func NewPaypalService(
	paypalClient client.PaypalClient,
	fulfillment FulfillmentService,
	webhookEventRepo repository.WebhookEventRepository,
	recorder metrics.Recorder,
	frontendURL string,
	verifyWebhooks bool,
) PaypalService {
	return &paypalServiceImpl{
		paypalClient:     paypalClient,
		fulfillment:      fulfillment,
		webhookEventRepo: webhookEventRepo,
		metrics:          recorder,
		frontendURL:      frontendURL,
		verifyWebhooks:   verifyWebhooks,
	}
}

func (s *paypalServiceImpl) CreateOrder(ctx context.Context, cart *model.Cart) (*model.CheckoutHandle, error) {
	params := &client.CreateOrderParams{
		Amount:      cart.UnitAmount,
		Currency:    cart.Currency,
		Description: truncate(cart.Title, 127),
		ReturnURL:   s.frontendURL + "/checkout/paypal/return",
		CancelURL:   s.frontendURL + "/gracias?status=cancelled",
	}
	// custom_id carries the product through the approval round trip
	if cart.Product.IsCourse() {
		params.CustomID = cart.Product.ExternalReference()
	}

	order, err := s.paypalClient.CreateOrder(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("paypal api create order: %w", err)
	}

	slog.InfoContext(ctx, "paypal order created", "order_id", order.ID, "product", cart.Product.String())
	return &model.CheckoutHandle{
		Provider:   model.ProviderPaypal,
		ExternalID: order.ID,
		Status:     order.Status,
		ApproveURL: order.ApproveURL(),
	}, nil
}

func (s *paypalServiceImpl) CaptureOrder(ctx context.Context, orderID string, buyer *BuyerHint) (*model.FulfillmentResult, error) {
	if orderID == "" {
		return nil, ErrInvalidEvent
	}

	prior, err := s.fulfillment.Lookup(ctx, model.ProviderPaypal, orderID)
	if err == nil {
		return prior, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup prior fulfillment: %w", err)
	}

	order, err := s.paypalClient.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("paypal api get order: %w", err)
	}

	captured := order
	switch order.Status {
	case model.PaypalStatusApproved:
		captured, err = s.paypalClient.CaptureOrder(ctx, orderID)
		if err != nil {
			if !captureMayHaveSucceeded(err) {
				return nil, fmt.Errorf("paypal api capture order: %w", err)
			}
			// a parallel capture may have completed the order already
			again, getErr := s.paypalClient.GetOrder(ctx, orderID)
			if getErr != nil || again.Status != model.PaypalStatusCompleted {
				return nil, fmt.Errorf("paypal api capture order: %w", err)
			}
			slog.WarnContext(ctx, "capture failed but order is completed, fulfilling", "order_id", orderID, "error", err)
			captured = again
		}
		if captured.Status != model.PaypalStatusCompleted {
			return nil, s.reject(ctx, orderID, captured.Status, "capture not completed")
		}
	case model.PaypalStatusCompleted:
		slog.InfoContext(ctx, "order already captured, fulfilling", "order_id", orderID)
	default:
		return nil, s.reject(ctx, orderID, order.Status, "order not approved")
	}

	return s.fulfillment.Fulfill(ctx, s.toEvent(orderID, order, captured, buyer))
}

// captureMayHaveSucceeded is true when PayPal reports the order as already
// captured or when no definite answer arrived.
func captureMayHaveSucceeded(err error) bool {
	var apiErr *client.PaypalAPIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.HasIssue(paypalIssueAlreadyCaptured) || apiErr.StatusCode >= 500
}

func (s *paypalServiceImpl) reject(ctx context.Context, orderID, status, reason string) error {
	s.metrics.RecordProviderRejection(model.ProviderPaypal)
	slog.WarnContext(ctx, "paypal payment rejected", "order_id", orderID, "status", status, "reason", reason)
	return &ProviderRejectionError{Provider: model.ProviderPaypal, Status: status, Reason: reason}
}

// toEvent reads capture details first and falls back to the order as fetched
// before capture, since the capture response omits some unit fields.
func (s *paypalServiceImpl) toEvent(orderID string, order, captured *model.PaypalOrder, buyer *BuyerHint) *model.PaymentApproved {
	customID := captured.CustomID()
	if customID == "" {
		customID = order.CustomID()
	}

	amount := captured.CapturedAmount()
	if amount.Value == "" {
		amount = order.CapturedAmount()
	}
	value, err := decimal.NewFromString(amount.Value)
	if err != nil {
		slog.Warn("unparseable paypal amount", "order_id", orderID, "value", amount.Value)
		value = decimal.Zero
	}

	description := captured.Description()
	if description == "" {
		description = order.Description()
	}

	email := firstNonEmpty(captured.Payer.Email, order.Payer.Email)
	name := firstNonEmpty(captured.Payer.FullName(), order.Payer.FullName())
	if buyer != nil {
		if buyer.Authoritative && buyer.Email != "" {
			email, name = buyer.Email, firstNonEmpty(buyer.Name, name)
		} else {
			email = firstNonEmpty(email, buyer.Email)
			name = firstNonEmpty(name, buyer.Name)
		}
	}

	product := model.BookRef()
	if customID != "" {
		product = model.ParseProductRef(customID)
	}

	return &model.PaymentApproved{
		Provider:        model.ProviderPaypal,
		ExternalOrderID: orderID,
		Amount:          value,
		Currency:        amount.Currency,
		BuyerEmail:      email,
		BuyerName:       name,
		Product:         product,
		Description:     description,
	}
}

func (s *paypalServiceImpl) HandleWebhook(ctx context.Context, headers http.Header, body []byte) error {
	if s.verifyWebhooks {
		if err := s.paypalClient.VerifyWebhookSignature(ctx, headers, body); err != nil {
			if errors.Is(err, client.ErrWebhookSignature) {
				return ErrInvalidSignature
			}
			return fmt.Errorf("verify webhook signature: %w", err)
		}
	}

	var event model.PayPalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: decode webhook payload: %v", ErrInvalidEvent, err)
	}
	log := slog.With("event_id", event.ID, "event_type", event.EventType)

	if event.ID != "" {
		processed, err := s.webhookEventRepo.Exists(ctx, model.ProviderPaypal, event.ID)
		if err != nil {
			return fmt.Errorf("check webhook event: %w", err)
		}
		if processed {
			log.InfoContext(ctx, "webhook event already processed")
			return nil
		}
	}

	switch event.EventType {
	case model.PaypalEventCaptureCompleted:
		if err := s.handleCaptureCompleted(ctx, &event); err != nil {
			return err
		}
	default:
		log.DebugContext(ctx, "ignoring paypal webhook event")
		return nil
	}

	if event.ID != "" {
		if err := s.webhookEventRepo.MarkProcessed(ctx, model.ProviderPaypal, event.ID, event.EventType); err != nil {
			// the fulfillment is idempotent, a redelivery is harmless
			log.WarnContext(ctx, "could not record webhook event", "error", err)
		}
	}
	return nil
}

func (s *paypalServiceImpl) handleCaptureCompleted(ctx context.Context, event *model.PayPalWebhookEvent) error {
	orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		return fmt.Errorf("%w: no order_id in capture event %s", ErrInvalidEvent, event.ID)
	}

	if _, err := s.fulfillment.Lookup(ctx, model.ProviderPaypal, orderID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup prior fulfillment: %w", err)
	}

	order, err := s.paypalClient.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("paypal api get order: %w", err)
	}
	if order.Status != model.PaypalStatusCompleted {
		slog.WarnContext(ctx, "capture event for an order that is not completed", "order_id", orderID, "status", order.Status)
		return nil
	}

	_, err = s.fulfillment.Fulfill(ctx, s.toEvent(orderID, order, order, nil))
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
