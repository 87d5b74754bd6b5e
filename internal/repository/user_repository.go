package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/fulfillment/internal/model"
)

type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	// DebitPoints subtracts amount only if the balance covers it; false means it did not.
	DebitPoints(ctx context.Context, id string, amount int64) (bool, error)
	CreditPoints(ctx context.Context, id string, amount int64) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepository) DebitPoints(ctx context.Context, id string, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND point >= ?", id, amount).
		UpdateColumn("point", gorm.Expr("point - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *userRepository) CreditPoints(ctx context.Context, id string, amount int64) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("point", gorm.Expr("point + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
