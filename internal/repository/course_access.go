package repository

import (
	"context"
	"sinew-backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CourseAccessRepository interface {
	// GrantIfAbsent inserts the grant unless (user, course) already has one,
	// which is left untouched.
	GrantIfAbsent(ctx context.Context, tx *gorm.DB, access *model.CourseAccess) (bool, error)
	Find(ctx context.Context, userID, courseSlug string) (*model.CourseAccess, error)
	ListByUser(ctx context.Context, userID string) ([]*model.CourseAccess, error)
}

type courseAccessRepoImpl struct {
	db *gorm.DB
}

func NewCourseAccessRepository(db *gorm.DB) CourseAccessRepository {
	return &courseAccessRepoImpl{
		db: db,
	}
}

func (r *courseAccessRepoImpl) GrantIfAbsent(ctx context.Context, tx *gorm.DB, access *model.CourseAccess) (bool, error) {
	res := conn(r.db, tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_slug"}},
		DoNothing: true,
	}).Create(access)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (r *courseAccessRepoImpl) Find(ctx context.Context, userID, courseSlug string) (*model.CourseAccess, error) {
	var access model.CourseAccess
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_slug = ?", userID, courseSlug).
		First(&access).Error
	if err != nil {
		return nil, translate(err)
	}

	return &access, nil
}

func (r *courseAccessRepoImpl) ListByUser(ctx context.Context, userID string) ([]*model.CourseAccess, error) {
	var grants []*model.CourseAccess
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&grants).Error
	if err != nil {
		return nil, err
	}

	return grants, nil
}
