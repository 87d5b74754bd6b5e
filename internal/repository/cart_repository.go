package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/fulfillment/internal/model"
)

// CartRepository 购物车行，只返回属于 userID 的行
type CartRepository interface {
	GetLinesForUpdate(ctx context.Context, ids []string, userID string) ([]*model.CartItem, error)
	Remove(ctx context.Context, ids []string, userID string) (int64, error)
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository { return &cartRepository{db: db} }

func (r *cartRepository) GetLinesForUpdate(ctx context.Context, ids []string, userID string) ([]*model.CartItem, error) {
	var items []*model.CartItem
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id IN ? AND user_id = ?", ids, userID).
		Order("id").
		Find(&items).Error
	return items, err
}

func (r *cartRepository) Remove(ctx context.Context, ids []string, userID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id IN ? AND user_id = ?", ids, userID).
		Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}
