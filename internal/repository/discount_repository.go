package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/fulfillment/internal/model"
)

type DiscountRepository interface {
	// GetCodeForUpdate matches either the code id or the code string.
	GetCodeForUpdate(ctx context.Context, idOrCode string) (*model.DiscountCode, error)
	GetDiscountForUpdate(ctx context.Context, id string) (*model.Discount, error)
	EligibleProductIDs(ctx context.Context, discountID string) ([]string, error)
	UpdateDiscount(ctx context.Context, d *model.Discount) error
	UpdateCode(ctx context.Context, c *model.DiscountCode) error
}

type discountRepository struct {
	db *gorm.DB
}

func NewDiscountRepository(db *gorm.DB) DiscountRepository { return &discountRepository{db: db} }

func (r *discountRepository) GetCodeForUpdate(ctx context.Context, idOrCode string) (*model.DiscountCode, error) {
	var c model.DiscountCode
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ? OR code = ?", idOrCode, idOrCode).
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *discountRepository) GetDiscountForUpdate(ctx context.Context, id string) (*model.Discount, error) {
	var d model.Discount
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (r *discountRepository) EligibleProductIDs(ctx context.Context, discountID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.DiscountProduct{}).
		Where("discount_id = ?", discountID).
		Pluck("product_id", &ids).Error
	return ids, err
}

func (r *discountRepository) UpdateDiscount(ctx context.Context, d *model.Discount) error {
	return r.db.WithContext(ctx).Model(d).Select("used_count", "updated_at").Updates(d).Error
}

func (r *discountRepository) UpdateCode(ctx context.Context, c *model.DiscountCode) error {
	return r.db.WithContext(ctx).Model(c).Select("status", "updated_at").Updates(c).Error
}
