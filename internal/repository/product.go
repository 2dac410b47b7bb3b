package repository

import (
	"context"
	"sinew-backend/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	Seed(ctx context.Context) error
	FindByRef(ctx context.Context, ref model.ProductRef) (*model.Product, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func (r *productRepoImpl) Seed(ctx context.Context) error {
	products := []model.Product{
		{ID: model.BookID, Kind: model.ProductKindBook, Title: "Libro digital", Price: decimal.RequireFromString("13.00"), Currency: "USD"},
		{ID: "comunicacion", Kind: model.ProductKindCourse, Title: "El Padre, el Árbol y el Maestro", Price: decimal.Zero, Currency: "USD", Level: "free"},
		{ID: "pro-avanzado", Kind: model.ProductKindCourse, Title: "Comunicación, tecnología y el plan de Dios", Price: decimal.RequireFromString("35.00"), Currency: "USD", Level: "pro"},
		{ID: "masterclass", Kind: model.ProductKindCourse, Title: "Renovación de la Mente", Price: decimal.RequireFromString("35.00"), Currency: "USD", Level: "pro"},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}

func (r *productRepoImpl) FindByRef(ctx context.Context, ref model.ProductRef) (*model.Product, error) {
	var product model.Product
	q := r.db.WithContext(ctx).Where("kind = ?", ref.Kind())
	if ref.IsCourse() {
		q = q.Where("id = ?", ref.Slug())
	} else {
		q = q.Where("id = ?", model.BookID)
	}
	if err := q.First(&product).Error; err != nil {
		return nil, translate(err)
	}

	return &product, nil
}
