package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/fulfillment/internal/model"
)

type PaymentRepository interface {
	GetMethod(ctx context.Context, id string) (*model.PaymentMethod, error)
	GetMethodByCode(ctx context.Context, code string) (*model.PaymentMethod, error)
	Create(ctx context.Context, p *model.Payment) error
	ListByOrder(ctx context.Context, orderID string) ([]*model.Payment, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &paymentRepository{db: db} }

func (r *paymentRepository) GetMethod(ctx context.Context, id string) (*model.PaymentMethod, error) {
	var m model.PaymentMethod
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *paymentRepository) GetMethodByCode(ctx context.Context, code string) (*model.PaymentMethod, error) {
	var m model.PaymentMethod
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]*model.Payment, error) {
	var ps []*model.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at, id").Find(&ps).Error
	return ps, err
}
