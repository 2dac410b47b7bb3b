package service

import (
	"context"
	"errors"
	"fmt"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type CourseService interface {
	// GrantSimulated grants a course without a provider payment. Calling it
	// again for the same user and course is a no-op.
	GrantSimulated(ctx context.Context, userID, slug string) (*model.FulfillmentResult, error)
	HasAccess(ctx context.Context, userID, slug string) (bool, error)
}

type courseServiceImpl struct {
	userRepo         repository.UserRepository
	productRepo      repository.ProductRepository
	courseAccessRepo repository.CourseAccessRepository
	fulfillment      FulfillmentService
}

func NewCourseService(
	userRepo repository.UserRepository,
	productRepo repository.ProductRepository,
	courseAccessRepo repository.CourseAccessRepository,
	fulfillment FulfillmentService,
) CourseService {
	return &courseServiceImpl{
		userRepo:         userRepo,
		productRepo:      productRepo,
		courseAccessRepo: courseAccessRepo,
		fulfillment:      fulfillment,
	}
}

func (s *courseServiceImpl) GrantSimulated(ctx context.Context, userID, slug string) (*model.FulfillmentResult, error) {
	ref := model.CourseRef(slug)
	if !ref.IsCourse() {
		return nil, ErrCourseNotFound
	}

	product, err := s.productRepo.FindByRef(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find course: %w", err)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	return s.fulfillment.Fulfill(ctx, &model.PaymentApproved{
		Provider:        model.ProviderManual,
		ExternalOrderID: fmt.Sprintf("manual:%s:%s", user.ID, ref.Slug()),
		Amount:          decimal.Zero,
		Currency:        product.Currency,
		BuyerEmail:      user.Email,
		BuyerName:       user.Name,
		Product:         ref,
		Description:     product.Title,
	})
}

func (s *courseServiceImpl) HasAccess(ctx context.Context, userID, slug string) (bool, error) {
	_, err := s.courseAccessRepo.Find(ctx, userID, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find course access: %w", err)
	}
	return true, nil
}
