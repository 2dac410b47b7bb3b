package handler

import (
	"context"
	"net/http"
	"time"

	"sinew-backend/internal/model"
	"sinew-backend/internal/service"
)

type stubCheckout struct {
	provider string
	cart     *model.Cart
	err      error
}

func (s *stubCheckout) CreateOrder(_ context.Context, provider string, cart *model.Cart) (*model.CheckoutHandle, error) {
	s.provider, s.cart = provider, cart
	if s.err != nil {
		return nil, s.err
	}
	return &model.CheckoutHandle{Provider: provider, ExternalID: "ORDER-1", Status: "CREATED", ApproveURL: "https://approve.test/ORDER-1"}, nil
}

type stubPaypal struct {
	hint       *service.BuyerHint
	result     *model.FulfillmentResult
	err        error
	webhookErr error
	body       []byte
}

func (s *stubPaypal) CreateOrder(context.Context, *model.Cart) (*model.CheckoutHandle, error) {
	return nil, nil
}

func (s *stubPaypal) CaptureOrder(_ context.Context, _ string, hint *service.BuyerHint) (*model.FulfillmentResult, error) {
	s.hint = hint
	return s.result, s.err
}

func (s *stubPaypal) HandleWebhook(_ context.Context, _ http.Header, body []byte) error {
	s.body = body
	return s.webhookErr
}

type stubMP struct {
	confirmed    []string
	notification *model.MPNotification
	result       *model.FulfillmentResult
	err          error
	sigErr       error
}

func (s *stubMP) CreatePreference(context.Context, *model.Cart) (*model.CheckoutHandle, error) {
	return nil, nil
}

func (s *stubMP) ConfirmPayment(_ context.Context, paymentID string) (*model.FulfillmentResult, error) {
	s.confirmed = append(s.confirmed, paymentID)
	return s.result, s.err
}

func (s *stubMP) HandleNotification(_ context.Context, n *model.MPNotification) (*service.NotificationOutcome, error) {
	s.notification = n
	if s.err != nil {
		return nil, s.err
	}
	return &service.NotificationOutcome{Topic: n.Topic, ID: n.ID, Fulfilled: 1}, nil
}

func (s *stubMP) VerifySignature(*model.MPNotification) error {
	return s.sigErr
}

func (s *stubMP) Reconcile(context.Context, time.Time, time.Time) (*service.ReconcileReport, error) {
	return &service.ReconcileReport{}, nil
}

type stubDownload struct {
	checkErr   error
	consumeErr error
	consumed   int
	checked    int
}

func (s *stubDownload) Check(context.Context, string) (*model.DownloadToken, error) {
	s.checked++
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return &model.DownloadToken{}, nil
}

func (s *stubDownload) Consume(context.Context, string) (*model.DownloadToken, error) {
	s.consumed++
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	return &model.DownloadToken{UserID: "u1"}, nil
}
