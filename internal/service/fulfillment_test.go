package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sinew-backend/internal/model"
)

func TestFulfill_BookEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.fulfillment.Fulfill(ctx, bookEvent("PAY-001"))
	if err != nil {
		t.Fatalf("Fulfill() error = %v", err)
	}
	if res.Duplicate {
		t.Error("first fulfillment reported as duplicate")
	}
	if !res.Emailed || res.EmailVia != "fake" {
		t.Errorf("Emailed = %v via %q, want emailed via fake", res.Emailed, res.EmailVia)
	}
	if !strings.HasPrefix(res.DownloadURL, "http://api.test/api/download/") {
		t.Errorf("DownloadURL = %q", res.DownloadURL)
	}
	if res.RedirectURL != "http://web.test/gracias?status=success&download="+res.DownloadToken {
		t.Errorf("RedirectURL = %q", res.RedirectURL)
	}

	purchase, err := h.purchases.FindByOrder(ctx, model.ProviderPaypal, "PAY-001")
	if err != nil {
		t.Fatalf("FindByOrder() error = %v", err)
	}
	if !purchase.Price.Equal(bookEvent("").Amount) || purchase.Currency != "USD" {
		t.Errorf("purchase = %s %s, want 13.00 USD", purchase.Price, purchase.Currency)
	}
	if purchase.BookID == nil || *purchase.BookID != model.BookID || purchase.CourseSlug != nil {
		t.Errorf("purchase product fields = %v / %v", purchase.BookID, purchase.CourseSlug)
	}

	user, err := h.users.FindByID(ctx, purchase.UserID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user.Email != "ana@example.com" || user.HasPassword() {
		t.Errorf("user = %q hasPassword=%v, want normalized placeholder-password account", user.Email, user.HasPassword())
	}

	token, err := h.tokens.FindByToken(ctx, res.DownloadToken)
	if err != nil {
		t.Fatalf("FindByToken() error = %v", err)
	}
	if len(token.Token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token.Token))
	}
	if token.Used {
		t.Error("fresh token is already used")
	}
	if d := time.Until(token.ExpiresAt) - 24*time.Hour; d > time.Minute || d < -time.Minute {
		t.Errorf("ExpiresAt = %v, want about now+24h", token.ExpiresAt)
	}

	if _, err := h.downloads.Consume(ctx, res.DownloadToken); err != nil {
		t.Fatalf("first Consume() error = %v", err)
	}
	if _, err := h.downloads.Consume(ctx, res.DownloadToken); !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("second Consume() error = %v, want ErrTokenUsed", err)
	}
}

func TestFulfill_SequentialDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.fulfillment.Fulfill(ctx, bookEvent("PAY-002"))
	if err != nil {
		t.Fatalf("Fulfill() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := h.fulfillment.Fulfill(ctx, bookEvent("PAY-002"))
		if err != nil {
			t.Fatalf("repeat %d: Fulfill() error = %v", i, err)
		}
		if !again.Duplicate || again.Emailed {
			t.Errorf("repeat %d: Duplicate=%v Emailed=%v", i, again.Duplicate, again.Emailed)
		}
		if again.PurchaseID != first.PurchaseID || again.DownloadToken != first.DownloadToken {
			t.Errorf("repeat %d returned a different grant", i)
		}
	}

	if n := h.count(t, &model.Purchase{}); n != 1 {
		t.Errorf("purchases = %d, want 1", n)
	}
	if n := h.count(t, &model.DownloadToken{}); n != 1 {
		t.Errorf("download tokens = %d, want 1", n)
	}
	if n := h.mail.count(); n != 1 {
		t.Errorf("emails sent = %d, want 1", n)
	}
}

func TestFulfill_ConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*model.FulfillmentResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.fulfillment.Fulfill(ctx, courseEvent(model.ProviderMercadoPago, "777", "pro-avanzado"))
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: error = %v", i, errs[i])
		}
		if !results[i].Duplicate {
			fresh++
		}
		if results[i].CourseURL != "http://web.test/cursos/pro-avanzado?paid=1" {
			t.Errorf("caller %d: CourseURL = %q", i, results[i].CourseURL)
		}
	}
	if fresh != 1 {
		t.Errorf("first-time fulfillments = %d, want 1", fresh)
	}
	if n := h.count(t, &model.Purchase{}); n != 1 {
		t.Errorf("purchases = %d, want 1", n)
	}
	if n := h.count(t, &model.CourseAccess{}); n != 1 {
		t.Errorf("course access rows = %d, want 1", n)
	}
	if n := h.count(t, &model.User{}); n != 1 {
		t.Errorf("users = %d, want 1", n)
	}
}

func TestFulfill_CourseGrantIdempotentAcrossOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.fulfillment.Fulfill(ctx, courseEvent(model.ProviderPaypal, "ORDER-A", "masterclass")); err != nil {
		t.Fatalf("first Fulfill() error = %v", err)
	}
	res, err := h.fulfillment.Fulfill(ctx, courseEvent(model.ProviderMercadoPago, "555", "masterclass"))
	if err != nil {
		t.Fatalf("second Fulfill() error = %v", err)
	}
	if res.Duplicate {
		t.Error("a different order must not be a duplicate")
	}

	if n := h.count(t, &model.Purchase{}); n != 2 {
		t.Errorf("purchases = %d, want 2", n)
	}
	if n := h.count(t, &model.CourseAccess{}); n != 1 {
		t.Errorf("course access rows = %d, want 1", n)
	}

	access, err := h.access.Find(ctx, res.UserID, "masterclass")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if access.Provider != model.ProviderPaypal || access.GrantedBy != model.GrantedByPaypal {
		t.Errorf("access = %s/%s, want the original paypal grant untouched", access.Provider, access.GrantedBy)
	}

	sent := h.mail.sent[len(h.mail.sent)-1]
	if !strings.Contains(sent.Subject, "Renovación de la Mente") {
		t.Errorf("subject = %q, want catalog course title", sent.Subject)
	}
}

func TestFulfill_EmailFailureIsolated(t *testing.T) {
	h := newHarnessWithMail(t, &fakeTransport{err: errors.New("smtp down")})
	ctx := context.Background()

	res, err := h.fulfillment.Fulfill(ctx, bookEvent("PAY-003"))
	if err != nil {
		t.Fatalf("Fulfill() error = %v, want success despite mail failure", err)
	}
	if res.Emailed {
		t.Error("Emailed = true with a failing transport")
	}
	if !strings.Contains(res.EmailFailure, "smtp down") {
		t.Errorf("EmailFailure = %q", res.EmailFailure)
	}
	if n := h.count(t, &model.Purchase{}); n != 1 {
		t.Errorf("purchases = %d, want 1", n)
	}
	if n := h.count(t, &model.DownloadToken{}); n != 1 {
		t.Errorf("download tokens = %d, want 1", n)
	}
	if h.mail.count() != 1 {
		t.Errorf("send attempts = %d, want exactly 1", h.mail.count())
	}
}

func TestFulfill_NoMailTransport(t *testing.T) {
	h := newHarnessWithMail(t, nil)

	res, err := h.fulfillment.Fulfill(context.Background(), courseEvent(model.ProviderPaypal, "ORDER-B", "pro-avanzado"))
	if err != nil {
		t.Fatalf("Fulfill() error = %v", err)
	}
	if res.Emailed || res.EmailFailure == "" {
		t.Errorf("Emailed=%v EmailFailure=%q, want granted not emailed", res.Emailed, res.EmailFailure)
	}
	if n := h.count(t, &model.CourseAccess{}); n != 1 {
		t.Errorf("course access rows = %d, want 1", n)
	}
}

func TestFulfill_MissingEmailUsesPlaceholder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	event := bookEvent("PAY-004")
	event.BuyerEmail = "not-an-email"
	res, err := h.fulfillment.Fulfill(ctx, event)
	if err != nil {
		t.Fatalf("Fulfill() error = %v", err)
	}
	if res.Emailed {
		t.Error("placeholder address must not be emailed")
	}
	if h.mail.count() != 0 {
		t.Errorf("emails sent = %d, want 0", h.mail.count())
	}

	user, err := h.users.FindByID(ctx, res.UserID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user.Email != "paypal+pay-004@placeholder.invalid" {
		t.Errorf("placeholder email = %q", user.Email)
	}
}

func TestFulfill_InvalidEvent(t *testing.T) {
	h := newHarness(t)

	event := bookEvent("")
	if _, err := h.fulfillment.Fulfill(context.Background(), event); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("Fulfill() error = %v, want ErrInvalidEvent", err)
	}
}

func TestFulfill_ExistingAccountReceivesGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.fulfillment.Fulfill(ctx, bookEvent("PAY-005"))
	if err != nil {
		t.Fatalf("Fulfill() error = %v", err)
	}
	second, err := h.fulfillment.Fulfill(ctx, courseEvent(model.ProviderPaypal, "ORDER-C", "pro-avanzado"))
	if err != nil {
		t.Fatalf("Fulfill() error = %v", err)
	}
	if first.UserID != second.UserID {
		t.Error("same buyer email resolved to two accounts")
	}
}
