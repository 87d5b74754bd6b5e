package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/fulfillment/internal/model"
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Create 创建订单及其订单行
	Create(ctx context.Context, order *model.Order, items []*model.OrderItem) error

	// Get 根据订单ID查询订单
	Get(ctx context.Context, orderID string) (*model.Order, error)

	// GetForUpdate locks the orders in id order. Missing ids are simply absent from the result.
	GetForUpdate(ctx context.Context, orderIDs []string) ([]*model.Order, error)

	// ListShippedBeforeForUpdate locks Shipped orders last modified before cutoff, skipping rows
	// another sweeper already holds.
	ListShippedBeforeForUpdate(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error)

	// CountByUser 统计用户历史订单数
	CountByUser(ctx context.Context, userID string) (int64, error)

	Items(ctx context.Context, orderID string) ([]*model.OrderItem, error)

	// UpdateStatus 更新订单状态（含修改人、修改时间、积分）
	UpdateStatus(ctx context.Context, order *model.Order) error

	AppendHistory(ctx context.Context, h *model.OrderStatusHistory) error
	History(ctx context.Context, orderID string) ([]*model.OrderStatusHistory, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order, items []*model.OrderItem) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(order).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *orderRepository) GetForUpdate(ctx context.Context, orderIDs []string) ([]*model.Order, error) {
	var orders []*model.Order
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id IN ?", orderIDs).
		Order("id").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) ListShippedBeforeForUpdate(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	q := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND modified_at < ?", model.OrderStatusShipped, cutoff).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&orders).Error
	return orders, err
}

func (r *orderRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *orderRepository) Items(ctx context.Context, orderID string) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&items).Error
	return items, err
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *model.Order) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":        order.Status,
			"points_earned": order.PointsEarned,
			"modified_at":   order.ModifiedAt,
			"modified_by":   order.ModifiedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory assigns the next sequence number for the order. Callers hold
// the order row lock, so appends for one order never race.
func (r *orderRepository) AppendHistory(ctx context.Context, h *model.OrderStatusHistory) error {
	var last int64
	if err := r.db.WithContext(ctx).Model(&model.OrderStatusHistory{}).
		Where("order_id = ?", h.OrderID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error; err != nil {
		return err
	}
	h.Seq = last + 1
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *orderRepository) History(ctx context.Context, orderID string) ([]*model.OrderStatusHistory, error) {
	var hs []*model.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("seq").
		Find(&hs).Error
	return hs, err
}
