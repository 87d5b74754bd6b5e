package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/fulfillment/internal/model"
)

// CatalogRepository 商品与规格库存读写
type CatalogRepository interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetProductForUpdate(ctx context.Context, id string) (*model.Product, error)
	GetVariantForUpdate(ctx context.Context, id string) (*model.ProductVariant, error)
	// UpdateProduct persists stock, sold and status.
	UpdateProduct(ctx context.Context, p *model.Product) error
	UpdateVariant(ctx context.Context, v *model.ProductVariant) error
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository { return &catalogRepository{db: db} }

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *catalogRepository) GetProductForUpdate(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *catalogRepository) GetVariantForUpdate(ctx context.Context, id string) (*model.ProductVariant, error) {
	var v model.ProductVariant
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (r *catalogRepository) UpdateProduct(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Model(p).
		Select("stock_quantity", "sold_quantity", "status", "updated_at").
		Updates(p).Error
}

func (r *catalogRepository) UpdateVariant(ctx context.Context, v *model.ProductVariant) error {
	return r.db.WithContext(ctx).Model(v).
		Select("stock_quantity", "sold_quantity", "status", "updated_at").
		Updates(v).Error
}
