package repository

import (
	"context"
	"sinew-backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type DownloadTokenRepository interface {
	Create(ctx context.Context, tx *gorm.DB, token *model.DownloadToken) error
	FindByToken(ctx context.Context, token string) (*model.DownloadToken, error)
	FindLatestByPurchase(ctx context.Context, purchaseID string) (*model.DownloadToken, error)
	// Consume flips used=false to true for an unexpired token and reports
	// whether this call did it.
	Consume(ctx context.Context, token string, now time.Time) (bool, error)
}

type downloadTokenRepoImpl struct {
	db *gorm.DB
}

func NewDownloadTokenRepository(db *gorm.DB) DownloadTokenRepository {
	return &downloadTokenRepoImpl{
		db: db,
	}
}

func (r *downloadTokenRepoImpl) Create(ctx context.Context, tx *gorm.DB, token *model.DownloadToken) error {
	return conn(r.db, tx).WithContext(ctx).Create(token).Error
}

func (r *downloadTokenRepoImpl) FindByToken(ctx context.Context, token string) (*model.DownloadToken, error) {
	var dt model.DownloadToken
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&dt).Error
	if err != nil {
		return nil, translate(err)
	}

	return &dt, nil
}

func (r *downloadTokenRepoImpl) FindLatestByPurchase(ctx context.Context, purchaseID string) (*model.DownloadToken, error) {
	var dt model.DownloadToken
	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("created_at DESC").
		First(&dt).Error
	if err != nil {
		return nil, translate(err)
	}

	return &dt, nil
}

func (r *downloadTokenRepoImpl) Consume(ctx context.Context, token string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.DownloadToken{}).
		Where("token = ? AND used = ? AND expires_at > ?", token, false, now).
		Updates(map[string]interface{}{
			"used":    true,
			"used_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}
