package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sinew-backend/internal/client"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	mpDefaultBuyerName = "Cliente MP"
	mpSearchPageSize   = 50
)

type MercadoPagoService interface {
	CreatePreference(ctx context.Context, cart *model.Cart) (*model.CheckoutHandle, error)
	// ConfirmPayment is the one entry point shared by the return redirect,
	// the webhook and the reconciliation sweep.
	ConfirmPayment(ctx context.Context, paymentID string) (*model.FulfillmentResult, error)
	HandleNotification(ctx context.Context, n *model.MPNotification) (*NotificationOutcome, error)
	VerifySignature(n *model.MPNotification) error
	Reconcile(ctx context.Context, since, until time.Time) (*ReconcileReport, error)
}

// NotificationOutcome summarises what one webhook delivery did.
type NotificationOutcome struct {
	Topic     string
	ID        string
	Fulfilled int
	Skipped   int
	Ignored   bool
}

type ReconcileReport struct {
	Scanned   int
	Fulfilled int
	Already   int
	Failed    int
}

type mercadoPagoServiceImpl struct {
	mpClient         client.MercadoPagoClient
	fulfillment      FulfillmentService
	webhookEventRepo repository.WebhookEventRepository
	metrics          metrics.Recorder
	baseURL          string
	webhookSecret    string
	sandbox          bool
}

func NewMercadoPagoService(
	mpClient client.MercadoPagoClient,
	fulfillment FulfillmentService,
	webhookEventRepo repository.WebhookEventRepository,
	recorder metrics.Recorder,
	baseURL string,
	webhookSecret string,
	sandbox bool,
) MercadoPagoService {
	return &mercadoPagoServiceImpl{
		mpClient:         mpClient,
		fulfillment:      fulfillment,
		webhookEventRepo: webhookEventRepo,
		metrics:          recorder,
		baseURL:          baseURL,
		webhookSecret:    webhookSecret,
		sandbox:          sandbox,
	}
}

func (s *mercadoPagoServiceImpl) CreatePreference(ctx context.Context, cart *model.Cart) (*model.CheckoutHandle, error) {
	returnURL := s.baseURL + "/api/payments/return"
	req := &model.MPPreferenceRequest{
		Items: []model.MPItem{{
			ID:         cart.Product.ItemID(),
			Title:      cart.Title,
			Quantity:   1,
			CurrencyID: cart.Currency,
			UnitPrice:  cart.UnitAmount.InexactFloat64(),
		}},
		BackURLs: model.MPBackURLs{
			Success: returnURL,
			Failure: returnURL,
			Pending: returnURL,
		},
		AutoReturn:        "approved",
		ExternalReference: cart.Product.ExternalReference(),
		NotificationURL:   s.baseURL + "/api/payments/webhook",
	}
	if cart.Product.IsCourse() {
		req.Metadata = map[string]string{"courseSlug": cart.Product.Slug()}
	}
	if cart.BuyerEmail != "" || cart.BuyerName != "" {
		req.Payer = &model.MPPayerRef{Email: cart.BuyerEmail, Name: cart.BuyerName}
	}

	pref, err := s.mpClient.CreatePreference(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago api create preference: %w", err)
	}

	approveURL := pref.InitPoint
	if s.sandbox && pref.SandboxInitPoint != "" {
		approveURL = pref.SandboxInitPoint
	}

	slog.InfoContext(ctx, "mercadopago preference created", "preference_id", pref.ID, "product", cart.Product.String())
	return &model.CheckoutHandle{
		Provider:   model.ProviderMercadoPago,
		ExternalID: pref.ID,
		Status:     "CREATED",
		ApproveURL: approveURL,
	}, nil
}

func (s *mercadoPagoServiceImpl) ConfirmPayment(ctx context.Context, paymentID string) (*model.FulfillmentResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" || paymentID == "null" {
		return nil, ErrMissingPaymentID
	}

	prior, err := s.fulfillment.Lookup(ctx, model.ProviderMercadoPago, paymentID)
	if err == nil {
		return prior, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup prior fulfillment: %w", err)
	}

	payment, err := s.mpClient.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("mercadopago api get payment: %w", err)
	}

	return s.fulfillPayment(ctx, payment)
}

func (s *mercadoPagoServiceImpl) fulfillPayment(ctx context.Context, payment *model.MPPayment) (*model.FulfillmentResult, error) {
	if payment.Status != model.MPStatusApproved {
		s.metrics.RecordProviderRejection(model.ProviderMercadoPago)
		slog.WarnContext(ctx, "mercadopago payment not approved",
			"payment_id", payment.ID.String(), "status", payment.Status, "detail", payment.StatusDetail)
		return nil, &ProviderRejectionError{
			Provider: model.ProviderMercadoPago,
			Status:   payment.Status,
			Reason:   payment.StatusDetail,
		}
	}

	return s.fulfillment.Fulfill(ctx, paymentToEvent(payment))
}

func paymentToEvent(p *model.MPPayment) *model.PaymentApproved {
	return &model.PaymentApproved{
		Provider:        model.ProviderMercadoPago,
		ExternalOrderID: p.ID.String(),
		Amount:          decimal.NewFromFloat(p.TransactionAmount),
		Currency:        p.CurrencyID,
		BuyerEmail:      firstNonEmpty(p.Payer.Email, p.AdditionalInfo.Payer.Email),
		BuyerName:       firstNonEmpty(p.Payer.FullName(), p.AdditionalInfo.Payer.FullName(), mpDefaultBuyerName),
		Product:         paymentProduct(p),
		Description:     p.Description,
	}
}

// paymentProduct checks metadata, then the first item id, then the external
// reference.
func paymentProduct(p *model.MPPayment) model.ProductRef {
	if slug := p.MetadataString("courseSlug", "course_slug"); slug != "" {
		return model.CourseRef(slug)
	}
	if len(p.AdditionalInfo.Items) > 0 && model.LooksLikeCourse(p.AdditionalInfo.Items[0].ID) {
		return model.ParseProductRef(p.AdditionalInfo.Items[0].ID)
	}
	if model.LooksLikeCourse(p.ExternalReference) {
		return model.ParseProductRef(p.ExternalReference)
	}
	return model.BookRef()
}

func (s *mercadoPagoServiceImpl) HandleNotification(ctx context.Context, n *model.MPNotification) (*NotificationOutcome, error) {
	out := &NotificationOutcome{Topic: n.Topic, ID: n.ID}
	log := slog.With("topic", n.Topic, "resource_id", n.ID)

	if n.ID == "" {
		out.Ignored = true
		log.InfoContext(ctx, "mercadopago notification without resource id")
		return out, nil
	}

	switch n.Topic {
	case model.MPTopicPayment:
		if err := s.confirmFromWebhook(ctx, n.ID, out); err != nil {
			return out, err
		}
		s.markProcessed(ctx, n)
	case model.MPTopicMerchantOrder:
		order, err := s.mpClient.GetMerchantOrder(ctx, n.ID)
		if err != nil {
			return out, fmt.Errorf("mercadopago api get merchant order: %w", err)
		}
		var errs []error
		for _, p := range order.Payments {
			if p.Status != model.MPStatusApproved {
				out.Skipped++
				continue
			}
			if err := s.confirmFromWebhook(ctx, p.ID.String(), out); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return out, err
		}
	default:
		out.Ignored = true
		log.DebugContext(ctx, "ignoring mercadopago notification")
	}

	return out, nil
}

// confirmFromWebhook treats a rejected payment as handled: the provider has
// nothing more to tell us about it.
func (s *mercadoPagoServiceImpl) confirmFromWebhook(ctx context.Context, paymentID string, out *NotificationOutcome) error {
	_, err := s.ConfirmPayment(ctx, paymentID)
	if IsProviderRejection(err) {
		out.Skipped++
		return nil
	}
	if err != nil {
		return err
	}
	out.Fulfilled++
	return nil
}

func (s *mercadoPagoServiceImpl) markProcessed(ctx context.Context, n *model.MPNotification) {
	eventID := n.Topic + ":" + n.ID
	if err := s.webhookEventRepo.MarkProcessed(ctx, model.ProviderMercadoPago, eventID, n.Topic); err != nil {
		slog.WarnContext(ctx, "could not record webhook event", "event_id", eventID, "error", err)
	}
}

// VerifySignature checks the x-signature header when a secret is configured.
func (s *mercadoPagoServiceImpl) VerifySignature(n *model.MPNotification) error {
	if s.webhookSecret == "" {
		return nil
	}
	return VerifyMPSignature(s.webhookSecret, n)
}

func VerifyMPSignature(secret string, n *model.MPNotification) error {
	var ts, v1 string
	for _, part := range strings.Split(n.Signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}

	want, err := hex.DecodeString(v1)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(MPSignatureManifest(n.ID, n.RequestID, ts)))
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrInvalidSignature
	}
	return nil
}

func MPSignatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

func (s *mercadoPagoServiceImpl) Reconcile(ctx context.Context, since, until time.Time) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	for offset := 0; ; offset += mpSearchPageSize {
		page, err := s.mpClient.SearchApprovedPayments(ctx, since, until, offset, mpSearchPageSize)
		if err != nil {
			return report, fmt.Errorf("mercadopago api search payments: %w", err)
		}

		for i := range page.Results {
			p := &page.Results[i]
			report.Scanned++

			id := p.ID.String()
			if _, err := s.fulfillment.Lookup(ctx, model.ProviderMercadoPago, id); err == nil {
				report.Already++
				continue
			} else if !errors.Is(err, repository.ErrNotFound) {
				return report, fmt.Errorf("lookup prior fulfillment: %w", err)
			}

			if _, err := s.fulfillPayment(ctx, p); err != nil {
				report.Failed++
				slog.ErrorContext(ctx, "reconcile payment failed", "payment_id", id, "error", err)
				continue
			}
			report.Fulfilled++
		}

		if len(page.Results) == 0 || offset+len(page.Results) >= page.Paging.Total {
			break
		}
	}

	slog.InfoContext(ctx, "mercadopago reconciliation finished",
		"scanned", report.Scanned, "fulfilled", report.Fulfilled, "already", report.Already, "failed", report.Failed)
	return report, nil
}
