package service

import (
	"context"
	"errors"
	"fmt"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"
	"strings"
)

// CheckoutService starts a checkout with the requested provider after
// completing the cart from the catalog.
type CheckoutService interface {
	CreateOrder(ctx context.Context, provider string, cart *model.Cart) (*model.CheckoutHandle, error)
}

type checkoutServiceImpl struct {
	productRepo       repository.ProductRepository
	paypalService     PaypalService
	mercadoPagoSvc    MercadoPagoService
	mpDefaultCurrency string
}

func NewCheckoutService(
	productRepo repository.ProductRepository,
	paypalService PaypalService,
	mercadoPagoSvc MercadoPagoService,
	mpDefaultCurrency string,
) CheckoutService {
	return &checkoutServiceImpl{
		productRepo:       productRepo,
		paypalService:     paypalService,
		mercadoPagoSvc:    mercadoPagoSvc,
		mpDefaultCurrency: mpDefaultCurrency,
	}
}

func (s *checkoutServiceImpl) CreateOrder(ctx context.Context, provider string, cart *model.Cart) (*model.CheckoutHandle, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != model.ProviderPaypal && provider != model.ProviderMercadoPago {
		return nil, ErrUnknownProvider
	}

	product, err := s.productRepo.FindByRef(ctx, cart.Product)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}

	completed := *cart
	if completed.Title == "" {
		completed.Title = product.Title
	}
	if completed.UnitAmount.IsZero() {
		completed.UnitAmount = product.Price
	}
	if completed.Currency == "" {
		completed.Currency = product.Currency
		if provider == model.ProviderMercadoPago && s.mpDefaultCurrency != "" {
			completed.Currency = s.mpDefaultCurrency
		}
	}
	completed.Currency = strings.ToUpper(completed.Currency)
	completed.BuyerEmail = NormalizeEmail(completed.BuyerEmail)

	if !completed.UnitAmount.IsPositive() {
		return nil, ErrFreeProduct
	}

	if provider == model.ProviderPaypal {
		return s.paypalService.CreateOrder(ctx, &completed)
	}
	return s.mercadoPagoSvc.CreatePreference(ctx, &completed)
}
