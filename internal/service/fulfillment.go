package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const purchaseStatusCompleted = "COMPLETED"

var ErrInvalidEvent = errors.New("payment event is missing provider or order id")

type FulfillmentService interface {
	// Fulfill is idempotent per (provider, external order id): repeated or
	// concurrent calls grant once and all report success.
	Fulfill(ctx context.Context, event *model.PaymentApproved) (*model.FulfillmentResult, error)
	// Lookup returns the result of an earlier fulfillment or repository.ErrNotFound.
	Lookup(ctx context.Context, provider, orderID string) (*model.FulfillmentResult, error)
}

type FulfillmentOptions struct {
	BaseURL       string
	FrontendURL   string
	TokenTTL      time.Duration
	NotifyTimeout time.Duration
}

type fulfillmentServiceImpl struct {
	db                *gorm.DB
	identity          IdentityService
	purchaseRepo      repository.PurchaseRepository
	downloadTokenRepo repository.DownloadTokenRepository
	courseAccessRepo  repository.CourseAccessRepository
	productRepo       repository.ProductRepository
	notifier          NotificationService
	metrics           metrics.Recorder
	opts              FulfillmentOptions
	now               func() time.Time
}

func NewFulfillmentService(
	db *gorm.DB,
	identity IdentityService,
	purchaseRepo repository.PurchaseRepository,
	downloadTokenRepo repository.DownloadTokenRepository,
	courseAccessRepo repository.CourseAccessRepository,
	productRepo repository.ProductRepository,
	notifier NotificationService,
	recorder metrics.Recorder,
	opts FulfillmentOptions,
) FulfillmentService {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 15 * time.Second
	}
	return &fulfillmentServiceImpl{
		db:                db,
		identity:          identity,
		purchaseRepo:      purchaseRepo,
		downloadTokenRepo: downloadTokenRepo,
		courseAccessRepo:  courseAccessRepo,
		productRepo:       productRepo,
		notifier:          notifier,
		metrics:           recorder,
		opts:              opts,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *fulfillmentServiceImpl) Fulfill(ctx context.Context, event *model.PaymentApproved) (*model.FulfillmentResult, error) {
	if event.Provider == "" || event.ExternalOrderID == "" {
		return nil, ErrInvalidEvent
	}
	product := string(event.Product.Kind())
	log := slog.With("provider", event.Provider, "order_id", event.ExternalOrderID, "product", event.Product.String())

	identity, err := s.identity.Resolve(ctx, &IdentityInput{
		Email:      event.BuyerEmail,
		Name:       event.BuyerName,
		Provider:   event.Provider,
		ExternalID: event.ExternalOrderID,
	})
	if err != nil {
		s.metrics.RecordFulfillment(event.Provider, product, metrics.OutcomeFailed)
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	user := identity.User

	now := s.now()
	currency := strings.ToUpper(strings.TrimSpace(event.Currency))
	if currency == "" {
		currency = "USD"
	}
	purchase := &model.Purchase{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Price:        event.Amount.Round(2),
		Currency:     currency,
		Status:       purchaseStatusCompleted,
		Provider:     event.Provider,
		OrderID:      event.ExternalOrderID,
		Description:  truncate(event.Description, 255),
		PurchaseDate: now,
	}
	if event.Product.IsCourse() {
		slug := event.Product.Slug()
		purchase.CourseSlug = &slug
	} else {
		bookID := model.BookID
		purchase.BookID = &bookID
	}

	var token *model.DownloadToken
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.purchaseRepo.Create(ctx, tx, purchase); err != nil {
			return err
		}

		if event.Product.IsCourse() {
			created, err := s.courseAccessRepo.GrantIfAbsent(ctx, tx, &model.CourseAccess{
				ID:         uuid.NewString(),
				UserID:     user.ID,
				CourseSlug: event.Product.Slug(),
				Provider:   event.Provider,
				GrantedBy:  grantedBy(event.Provider),
				GrantedAt:  now,
				Notes:      "order " + event.ExternalOrderID,
			})
			if err != nil {
				return fmt.Errorf("grant course access: %w", err)
			}
			if !created {
				log.InfoContext(ctx, "course access already present, left unchanged", "user_id", user.ID)
			}
			return nil
		}

		value, err := newToken()
		if err != nil {
			return err
		}
		token = &model.DownloadToken{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			PurchaseID: purchase.ID,
			Token:      value,
			ExpiresAt:  now.Add(s.opts.TokenTTL),
		}
		if err := s.downloadTokenRepo.Create(ctx, tx, token); err != nil {
			return fmt.Errorf("create download token: %w", err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrPurchaseExists) {
		log.InfoContext(ctx, "payment already fulfilled")
		result, lookupErr := s.Lookup(ctx, event.Provider, event.ExternalOrderID)
		if lookupErr != nil {
			s.metrics.RecordFulfillment(event.Provider, product, metrics.OutcomeFailed)
			return nil, fmt.Errorf("load prior fulfillment: %w", lookupErr)
		}
		s.metrics.RecordFulfillment(event.Provider, product, metrics.OutcomeDuplicate)
		return result, nil
	}
	if err != nil {
		s.metrics.RecordFulfillment(event.Provider, product, metrics.OutcomeFailed)
		log.ErrorContext(ctx, "fulfillment failed", "error", err)
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	result := s.buildResult(purchase, token)
	log.InfoContext(ctx, "payment fulfilled", "user_id", user.ID, "purchase_id", purchase.ID)

	s.notify(ctx, event, identity, result)
	s.metrics.RecordFulfillment(event.Provider, product, metrics.OutcomeGranted)

	return result, nil
}

func (s *fulfillmentServiceImpl) Lookup(ctx context.Context, provider, orderID string) (*model.FulfillmentResult, error) {
	purchase, err := s.purchaseRepo.FindByOrder(ctx, provider, orderID)
	if err != nil {
		return nil, err
	}

	var token *model.DownloadToken
	if !purchase.Product().IsCourse() {
		token, err = s.downloadTokenRepo.FindLatestByPurchase(ctx, purchase.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find download token: %w", err)
		}
	}

	result := s.buildResult(purchase, token)
	result.Duplicate = true
	return result, nil
}

func (s *fulfillmentServiceImpl) buildResult(purchase *model.Purchase, token *model.DownloadToken) *model.FulfillmentResult {
	result := &model.FulfillmentResult{
		PurchaseID: purchase.ID,
		UserID:     purchase.UserID,
		Provider:   purchase.Provider,
		OrderID:    purchase.OrderID,
		Product:    purchase.Product(),
	}

	if result.Product.IsCourse() {
		result.CourseURL = fmt.Sprintf("%s/cursos/%s?paid=1", s.opts.FrontendURL, url.PathEscape(result.Product.Slug()))
		result.RedirectURL = result.CourseURL
		return result
	}

	if token != nil {
		result.DownloadToken = token.Token
		result.DownloadURL = fmt.Sprintf("%s/api/download/%s", s.opts.BaseURL, token.Token)
		result.RedirectURL = fmt.Sprintf("%s/gracias?status=success&download=%s", s.opts.FrontendURL, url.QueryEscape(token.Token))
	} else {
		result.RedirectURL = s.opts.FrontendURL + "/gracias?status=success"
	}
	return result
}

// notify never fails the fulfillment; the outcome is written into result.
func (s *fulfillmentServiceImpl) notify(ctx context.Context, event *model.PaymentApproved, identity *Identity, result *model.FulfillmentResult) {
	log := slog.With("provider", event.Provider, "order_id", event.ExternalOrderID, "user_id", identity.User.ID)

	if identity.Placeholder {
		result.EmailFailure = "buyer has no deliverable email address"
		log.WarnContext(ctx, "granted, not emailed", "reason", result.EmailFailure)
		return
	}

	n := &Notification{
		To:   identity.User.Email,
		Name: identity.User.Name,
	}
	if result.Product.IsCourse() {
		n.Kind = NotificationCourseAccess
		n.CourseURL = result.CourseURL
		n.CourseTitle = s.courseTitle(ctx, result.Product, event.Description)
	} else {
		n.Kind = NotificationPurchase
		n.DownloadURL = result.DownloadURL
	}

	// the buyer may already be gone; the email still goes out
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()

	res, err := s.notifier.Send(sendCtx, n)
	if res != nil {
		result.EmailVia = res.Via
		result.EmailID = res.ID
	}
	if err != nil {
		result.EmailFailure = err.Error()
		log.WarnContext(ctx, "granted, not emailed", "kind", n.Kind, "error", err)
		return
	}
	result.Emailed = true
}

func (s *fulfillmentServiceImpl) courseTitle(ctx context.Context, ref model.ProductRef, fallback string) string {
	if p, err := s.productRepo.FindByRef(ctx, ref); err == nil && p.Title != "" {
		return p.Title
	}
	if fallback != "" {
		return fallback
	}
	return ref.Slug()
}

func grantedBy(provider string) model.GrantedBy {
	switch provider {
	case model.ProviderPaypal:
		return model.GrantedByPaypal
	case model.ProviderMercadoPago:
		return model.GrantedByMercadoPago
	case model.ProviderManual:
		return model.GrantedBySimulated
	default:
		return model.GrantedByPurchase
	}
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
