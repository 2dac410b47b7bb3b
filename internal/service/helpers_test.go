package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"sinew-backend/internal/client"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"
	"sinew-backend/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeTransport struct {
	mu   sync.Mutex
	name string
	err  error
	sent []*client.Email
}

func (f *fakeTransport) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeTransport) Send(_ context.Context, email *client.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, email)
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePaypal struct {
	mu           sync.Mutex
	orders       map[string]*model.PaypalOrder
	captureErr   error
	captureCalls int
	getCalls     int
	created      []*client.CreateOrderParams
	verifyErr    error
}

func newFakePaypal() *fakePaypal {
	return &fakePaypal{orders: map[string]*model.PaypalOrder{}}
}

func (f *fakePaypal) CreateOrder(_ context.Context, params *client.CreateOrderParams) (*model.PaypalOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params)
	return &model.PaypalOrder{
		ID:     "ORDER-NEW",
		Status: "CREATED",
		Links:  []model.PaypalLink{{Rel: "approve", Href: "https://paypal.test/approve/ORDER-NEW"}},
	}, nil
}

func (f *fakePaypal) GetOrder(_ context.Context, orderID string) (*model.PaypalOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	o, ok := f.orders[orderID]
	if !ok {
		return nil, &client.PaypalAPIError{StatusCode: http.StatusNotFound, Name: "RESOURCE_NOT_FOUND"}
	}
	cp := *o
	return &cp, nil
}

func (f *fakePaypal) CaptureOrder(_ context.Context, orderID string) (*model.PaypalOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captureCalls++
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, &client.PaypalAPIError{StatusCode: http.StatusNotFound}
	}
	o.Status = model.PaypalStatusCompleted
	cp := *o
	return &cp, nil
}

func (f *fakePaypal) VerifyWebhookSignature(context.Context, http.Header, []byte) error {
	return f.verifyErr
}

func (f *fakePaypal) captures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captureCalls
}

func paypalOrder(id, status, customID, value, email string) *model.PaypalOrder {
	return &model.PaypalOrder{
		ID:     id,
		Status: status,
		Payer: model.Payer{
			Email: email,
			Name:  model.PayerName{GivenName: "Ana", Surname: "Pérez"},
		},
		PurchaseUnits: []model.PurchaseUnit{{
			CustomID:    customID,
			Description: "Libro SINEW",
			Amount:      &model.Amount{Currency: "USD", Value: value},
		}},
	}
}

type fakeMP struct {
	mu             sync.Mutex
	payments       map[string]*model.MPPayment
	merchantOrders map[string]*model.MPMerchantOrder
	getErr         error
	getCalls       int
	prefs          []*model.MPPreferenceRequest
}

func newFakeMP() *fakeMP {
	return &fakeMP{
		payments:       map[string]*model.MPPayment{},
		merchantOrders: map[string]*model.MPMerchantOrder{},
	}
}

func (f *fakeMP) CreatePreference(_ context.Context, pref *model.MPPreferenceRequest) (*model.MPPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs = append(f.prefs, pref)
	return &model.MPPreference{
		ID:               "PREF-1",
		InitPoint:        "https://mp.test/init/PREF-1",
		SandboxInitPoint: "https://sandbox.mp.test/init/PREF-1",
	}, nil
}

func (f *fakeMP) GetPreference(context.Context, string) (*model.MPPreference, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMP) GetPayment(_ context.Context, paymentID string) (*model.MPPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, &client.MercadoPagoAPIError{StatusCode: http.StatusNotFound, Message: "payment not found"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeMP) GetMerchantOrder(_ context.Context, id string) (*model.MPMerchantOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mo, ok := f.merchantOrders[id]
	if !ok {
		return nil, &client.MercadoPagoAPIError{StatusCode: http.StatusNotFound}
	}
	return mo, nil
}

func (f *fakeMP) SearchApprovedPayments(_ context.Context, _, _ time.Time, offset, limit int) (*model.MPPaymentSearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.MPPayment
	for _, p := range f.payments {
		if p.Status == model.MPStatusApproved {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	out := &model.MPPaymentSearch{}
	out.Paging.Total = len(all)
	out.Paging.Offset = offset
	out.Paging.Limit = limit
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		out.Results = all[offset:end]
	}
	return out, nil
}

func mpPayment(id, status, email string) *model.MPPayment {
	return &model.MPPayment{
		ID:                json.Number(id),
		Status:            status,
		TransactionAmount: 13,
		CurrencyID:        "USD",
		Description:       "Libro SINEW",
		ExternalReference: "book:" + model.BookID,
		Payer:             model.MPPayer{Email: email, FirstName: "Ana", LastName: "Pérez"},
	}
}

type harness struct {
	db          *gorm.DB
	users       repository.UserRepository
	purchases   repository.PurchaseRepository
	tokens      repository.DownloadTokenRepository
	access      repository.CourseAccessRepository
	products    repository.ProductRepository
	events      repository.WebhookEventRepository
	mail        *fakeTransport
	fulfillment FulfillmentService
	downloads   DownloadService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithMail(t, &fakeTransport{})
}

func newHarnessWithMail(t *testing.T, mail *fakeTransport) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	h := &harness{
		db:        db,
		users:     repository.NewUserRepository(db),
		purchases: repository.NewPurchaseRepository(db),
		tokens:    repository.NewDownloadTokenRepository(db),
		access:    repository.NewCourseAccessRepository(db),
		products:  repository.NewProductRepository(db),
		events:    repository.NewWebhookEventRepository(db),
		mail:      mail,
	}
	if err := h.products.Seed(context.Background()); err != nil {
		t.Fatalf("seed products: %v", err)
	}

	var notifier NotificationService
	if mail != nil {
		notifier = NewNotificationService(mail, nil, metrics.Nop{})
	} else {
		notifier = NewNotificationService(nil, nil, metrics.Nop{})
	}

	h.fulfillment = NewFulfillmentService(
		db,
		NewIdentityService(h.users, "placeholder.invalid"),
		h.purchases,
		h.tokens,
		h.access,
		h.products,
		notifier,
		metrics.Nop{},
		FulfillmentOptions{
			BaseURL:     "http://api.test",
			FrontendURL: "http://web.test",
			TokenTTL:    24 * time.Hour,
		},
	)
	h.downloads = NewDownloadService(h.tokens, metrics.Nop{})
	return h
}

func (h *harness) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func bookEvent(orderID string) *model.PaymentApproved {
	return &model.PaymentApproved{
		Provider:        model.ProviderPaypal,
		ExternalOrderID: orderID,
		Amount:          decimal.RequireFromString("13.00"),
		Currency:        "USD",
		BuyerEmail:      "Ana@Example.com ",
		BuyerName:       "Ana Pérez",
		Product:         model.BookRef(),
		Description:     "Libro SINEW",
	}
}

func courseEvent(provider, orderID, slug string) *model.PaymentApproved {
	return &model.PaymentApproved{
		Provider:        provider,
		ExternalOrderID: orderID,
		Amount:          decimal.RequireFromString("35.00"),
		Currency:        "USD",
		BuyerEmail:      "ana@example.com",
		BuyerName:       "Ana Pérez",
		Product:         model.CourseRef(slug),
	}
}
