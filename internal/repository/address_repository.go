package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/fulfillment/internal/model"
)

type AddressRepository interface {
	Get(ctx context.Context, id string) (*model.Address, error)
}

type addressRepository struct {
	db *gorm.DB
}

func NewAddressRepository(db *gorm.DB) AddressRepository { return &addressRepository{db: db} }

func (r *addressRepository) Get(ctx context.Context, id string) (*model.Address, error) {
	var a model.Address
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}
