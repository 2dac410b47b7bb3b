package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"sinew-backend/internal/client"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/model"

	"github.com/shopspring/decimal"
)

func newPaypalService(h *harness, pp *fakePaypal, verify bool) PaypalService {
	return NewPaypalService(pp, h.fulfillment, h.events, metrics.Nop{}, "http://web.test", verify)
}

func TestPaypalService_CreateOrderCarriesCourse(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	svc := newPaypalService(h, pp, false)

	handle, err := svc.CreateOrder(context.Background(), &model.Cart{
		Product:    model.CourseRef("masterclass"),
		Title:      "Renovación de la Mente",
		UnitAmount: decimal.RequireFromString("35"),
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if handle.ExternalID != "ORDER-NEW" || handle.ApproveURL == "" {
		t.Errorf("handle = %+v", handle)
	}
	if got := pp.created[0].CustomID; got != "course:masterclass" {
		t.Errorf("CustomID = %q, want course:masterclass", got)
	}

	if _, err := svc.CreateOrder(context.Background(), &model.Cart{Product: model.BookRef(), Currency: "USD"}); err != nil {
		t.Fatal(err)
	}
	if got := pp.created[1].CustomID; got != "" {
		t.Errorf("book CustomID = %q, want empty", got)
	}
}

func TestPaypalService_CaptureTwice(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	pp.orders["ORDER-1"] = paypalOrder("ORDER-1", model.PaypalStatusApproved, "course:pro-avanzado", "35.00", "buyer@example.com")
	svc := newPaypalService(h, pp, false)
	ctx := context.Background()

	first, err := svc.CaptureOrder(ctx, "ORDER-1", nil)
	if err != nil {
		t.Fatalf("CaptureOrder() error = %v", err)
	}
	if first.Duplicate || !first.Product.IsCourse() || first.Product.Slug() != "pro-avanzado" {
		t.Errorf("first = %+v", first)
	}

	second, err := svc.CaptureOrder(ctx, "ORDER-1", nil)
	if err != nil {
		t.Fatalf("second CaptureOrder() error = %v", err)
	}
	if !second.Duplicate || second.PurchaseID != first.PurchaseID {
		t.Errorf("second = %+v, want the prior result", second)
	}
	if pp.captures() != 1 {
		t.Errorf("capture calls = %d, want 1", pp.captures())
	}
	if n := h.count(t, &model.Purchase{}); n != 1 {
		t.Errorf("purchases = %d, want 1", n)
	}
}

func TestPaypalService_CaptureRejected(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	pp.orders["ORDER-2"] = paypalOrder("ORDER-2", "PAYER_ACTION_REQUIRED", "", "13.00", "buyer@example.com")
	svc := newPaypalService(h, pp, false)

	_, err := svc.CaptureOrder(context.Background(), "ORDER-2", nil)
	var rej *ProviderRejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("CaptureOrder() error = %v, want ProviderRejectionError", err)
	}
	if rej.Status != "PAYER_ACTION_REQUIRED" {
		t.Errorf("Status = %q", rej.Status)
	}
	if pp.captures() != 0 {
		t.Error("rejected order was captured")
	}
	if n := h.count(t, &model.Purchase{}); n != 0 {
		t.Errorf("purchases = %d, want 0", n)
	}
}

func TestPaypalService_AlreadyCompletedIsFulfilled(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	pp.orders["ORDER-3"] = paypalOrder("ORDER-3", model.PaypalStatusCompleted, "", "13.00", "buyer@example.com")
	svc := newPaypalService(h, pp, false)

	res, err := svc.CaptureOrder(context.Background(), "ORDER-3", nil)
	if err != nil {
		t.Fatalf("CaptureOrder() error = %v", err)
	}
	if res.DownloadToken == "" {
		t.Error("book fulfillment without download token")
	}
	if pp.captures() != 0 {
		t.Error("completed order captured again")
	}
}

func TestPaypalService_CaptureErrorSelfHeals(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	pp.orders["ORDER-4"] = paypalOrder("ORDER-4", model.PaypalStatusApproved, "", "13.00", "buyer@example.com")
	pp.captureErr = &client.PaypalAPIError{StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Issues: []string{"ORDER_ALREADY_CAPTURED"}}
	svc := newPaypalService(h, pp, false)
	ctx := context.Background()

	if _, err := svc.CaptureOrder(ctx, "ORDER-4", nil); err == nil {
		t.Fatal("CaptureOrder() succeeded while the order is still approved")
	}
	if n := h.count(t, &model.Purchase{}); n != 0 {
		t.Fatalf("purchases = %d, want 0", n)
	}

	// the capture went through on PayPal's side but the response was lost
	pp.captureErr = errors.New("connection reset")
	completed := paypalOrder("ORDER-4", model.PaypalStatusCompleted, "", "13.00", "buyer@example.com")
	healing := &completingPaypal{fakePaypal: pp, after: completed}
	svc = NewPaypalService(healing, h.fulfillment, h.events, metrics.Nop{}, "http://web.test", false)

	res, err := svc.CaptureOrder(ctx, "ORDER-4", nil)
	if err != nil {
		t.Fatalf("CaptureOrder() error = %v, want fulfilled from completed order", err)
	}
	if res.DownloadToken == "" {
		t.Error("no download token after self-heal")
	}
}

func TestPaypalService_DeclinedCaptureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	pp.orders["ORDER-5"] = paypalOrder("ORDER-5", model.PaypalStatusApproved, "", "13.00", "buyer@example.com")
	pp.captureErr = &client.PaypalAPIError{StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Issues: []string{"INSTRUMENT_DECLINED"}}
	svc := newPaypalService(h, pp, false)

	_, err := svc.CaptureOrder(context.Background(), "ORDER-5", nil)
	var apiErr *client.PaypalAPIError
	if !errors.As(err, &apiErr) || !apiErr.HasIssue("INSTRUMENT_DECLINED") {
		t.Fatalf("CaptureOrder() error = %v, want the declined api error", err)
	}
	if pp.getCalls != 1 {
		t.Errorf("GetOrder calls = %d, want 1 (no re-read after a decline)", pp.getCalls)
	}
}

// completingPaypal fails the capture call but reports the order as completed
// on every later read.
type completingPaypal struct {
	*fakePaypal
	after    *model.PaypalOrder
	captured bool
}

func (c *completingPaypal) GetOrder(ctx context.Context, orderID string) (*model.PaypalOrder, error) {
	if c.captured {
		cp := *c.after
		return &cp, nil
	}
	return c.fakePaypal.GetOrder(ctx, orderID)
}

func (c *completingPaypal) CaptureOrder(ctx context.Context, orderID string) (*model.PaypalOrder, error) {
	c.captured = true
	return c.fakePaypal.CaptureOrder(ctx, orderID)
}

func TestPaypalService_BuyerHint(t *testing.T) {
	tests := []struct {
		name      string
		payer     string
		hint      *BuyerHint
		wantEmail string
	}{
		{name: "payer email wins over body", payer: "payer@example.com", hint: &BuyerHint{Email: "body@example.com"}, wantEmail: "payer@example.com"},
		{name: "body fills missing payer email", payer: "", hint: &BuyerHint{Email: "body@example.com"}, wantEmail: "body@example.com"},
		{name: "logged in account wins", payer: "payer@example.com", hint: &BuyerHint{Email: "member@example.com", Authoritative: true}, wantEmail: "member@example.com"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			pp := newFakePaypal()
			id := "ORDER-H" + string(rune('0'+i))
			pp.orders[id] = paypalOrder(id, model.PaypalStatusApproved, "", "13.00", tt.payer)
			svc := newPaypalService(h, pp, false)

			res, err := svc.CaptureOrder(context.Background(), id, tt.hint)
			if err != nil {
				t.Fatalf("CaptureOrder() error = %v", err)
			}
			user, err := h.users.FindByID(context.Background(), res.UserID)
			if err != nil {
				t.Fatal(err)
			}
			if user.Email != tt.wantEmail {
				t.Errorf("grant went to %q, want %q", user.Email, tt.wantEmail)
			}
		})
	}
}

func captureEvent(eventID, orderID string) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"id":         eventID,
		"event_type": model.PaypalEventCaptureCompleted,
		"resource": map[string]interface{}{
			"id":     "CAP-1",
			"status": "COMPLETED",
			"supplementary_data": map[string]interface{}{
				"related_ids": map[string]string{"order_id": orderID},
			},
		},
	})
	return b
}

func TestPaypalService_WebhookFulfillsOnce(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	pp.orders["ORDER-5"] = paypalOrder("ORDER-5", model.PaypalStatusCompleted, "course:masterclass", "35.00", "buyer@example.com")
	svc := newPaypalService(h, pp, true)
	ctx := context.Background()

	body := captureEvent("WH-1", "ORDER-5")
	for i := 0; i < 2; i++ {
		if err := svc.HandleWebhook(ctx, nil, body); err != nil {
			t.Fatalf("HandleWebhook() #%d error = %v", i, err)
		}
	}

	processed, err := h.events.Exists(ctx, model.ProviderPaypal, "WH-1")
	if err != nil || !processed {
		t.Errorf("Exists() = %v, %v; want recorded event", processed, err)
	}
	if pp.getCalls != 1 {
		t.Errorf("order fetches = %d, want 1 (redelivery skipped)", pp.getCalls)
	}
	if n := h.count(t, &model.CourseAccess{}); n != 1 {
		t.Errorf("course access rows = %d, want 1", n)
	}

	// the buyer's own capture call converges on the same purchase
	res, err := svc.CaptureOrder(ctx, "ORDER-5", nil)
	if err != nil {
		t.Fatalf("CaptureOrder() error = %v", err)
	}
	if !res.Duplicate {
		t.Error("capture after webhook not reported as duplicate")
	}
}

func TestPaypalService_WebhookBadSignature(t *testing.T) {
	h := newHarness(t)
	pp := newFakePaypal()
	pp.verifyErr = client.ErrWebhookSignature
	svc := newPaypalService(h, pp, true)

	err := svc.HandleWebhook(context.Background(), nil, captureEvent("WH-2", "ORDER-6"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("HandleWebhook() error = %v, want ErrInvalidSignature", err)
	}
}

func TestPaypalService_WebhookIgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	svc := newPaypalService(h, newFakePaypal(), false)

	body := []byte(`{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{}}`)
	if err := svc.HandleWebhook(context.Background(), nil, body); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if err := svc.HandleWebhook(context.Background(), nil, []byte("{")); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("HandleWebhook(malformed) error = %v, want ErrInvalidEvent", err)
	}
}
