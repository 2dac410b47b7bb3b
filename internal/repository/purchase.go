package repository

import (
	"context"
	"errors"
	"sinew-backend/internal/model"

	"gorm.io/gorm"
)

type PurchaseRepository interface {
	// Create fails with ErrPurchaseExists when (provider, order id) was already recorded.
	Create(ctx context.Context, tx *gorm.DB, purchase *model.Purchase) error
	FindByOrder(ctx context.Context, provider, orderID string) (*model.Purchase, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Purchase, error)
}

type purchaseRepoImpl struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepoImpl{
		db: db,
	}
}

func (r *purchaseRepoImpl) Create(ctx context.Context, tx *gorm.DB, purchase *model.Purchase) error {
	err := conn(r.db, tx).WithContext(ctx).Create(purchase).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrPurchaseExists
	}
	return err
}

func (r *purchaseRepoImpl) FindByOrder(ctx context.Context, provider, orderID string) (*model.Purchase, error) {
	var purchase model.Purchase
	err := r.db.WithContext(ctx).
		Where("provider = ? AND order_id = ?", provider, orderID).
		First(&purchase).Error
	if err != nil {
		return nil, translate(err)
	}

	return &purchase, nil
}

func (r *purchaseRepoImpl) ListByUser(ctx context.Context, userID string) ([]*model.Purchase, error) {
	var purchases []*model.Purchase
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchase_date DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}

	return purchases, nil
}
