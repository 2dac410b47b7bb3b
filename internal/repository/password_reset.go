package repository

import (
	"context"
	"sinew-backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type PasswordResetRepository interface {
	Create(ctx context.Context, reset *model.PasswordReset) error
	FindValid(ctx context.Context, tx *gorm.DB, tokenHash string, now time.Time) (*model.PasswordReset, error)
	// Consume flips used=false to true for an unexpired reset and reports
	// whether this call did it.
	Consume(ctx context.Context, tx *gorm.DB, id string, now time.Time) (bool, error)
	// MarkUsed closes every other open reset of the user.
	MarkUsed(ctx context.Context, tx *gorm.DB, userID string) error
}

type passwordResetRepoImpl struct {
	db *gorm.DB
}

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &passwordResetRepoImpl{
		db: db,
	}
}

func (r *passwordResetRepoImpl) Create(ctx context.Context, reset *model.PasswordReset) error {
	return r.db.WithContext(ctx).Create(reset).Error
}

func (r *passwordResetRepoImpl) FindValid(ctx context.Context, tx *gorm.DB, tokenHash string, now time.Time) (*model.PasswordReset, error) {
	var reset model.PasswordReset
	err := conn(r.db, tx).WithContext(ctx).
		Where("token_hash = ? AND used = ? AND expires_at > ?", tokenHash, false, now).
		First(&reset).Error
	if err != nil {
		return nil, translate(err)
	}

	return &reset, nil
}

func (r *passwordResetRepoImpl) Consume(ctx context.Context, tx *gorm.DB, id string, now time.Time) (bool, error) {
	res := conn(r.db, tx).WithContext(ctx).
		Model(&model.PasswordReset{}).
		Where("id = ? AND used = ? AND expires_at > ?", id, false, now).
		Update("used", true)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

func (r *passwordResetRepoImpl) MarkUsed(ctx context.Context, tx *gorm.DB, userID string) error {
	return conn(r.db, tx).WithContext(ctx).
		Model(&model.PasswordReset{}).
		Where("user_id = ? AND used = ?", userID, false).
		Update("used", true).Error
}
