package model

import "time"

const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxDone       = "done"
	OutboxFailed     = "failed"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderOutbox 订单事件外发盒，与业务写入同一事务落地
type OrderOutbox struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	OrderID     string     `gorm:"type:varchar(36);index:idx_outbox_order"`
	EventType   string     `gorm:"type:varchar(32);not null"`
	Payload     string     `gorm:"type:text"`
	Status      string     `gorm:"type:varchar(16);index:idx_outbox_status_created"` // pending, processing, done, failed
	Attempts    int        `gorm:"not null;default:0"`
	CreatedAt   time.Time  `gorm:"index:idx_outbox_status_created"`
	ClaimedAt   *time.Time
	ProcessedAt *time.Time
}

func (OrderOutbox) TableName() string { return "order_outbox" }

// All lists every table the engine owns, in migration order.
func All() []any {
	return []any{
		&User{}, &Address{}, &Setting{},
		&Product{}, &ProductVariant{}, &CartItem{},
		&Discount{}, &DiscountProduct{}, &DiscountCode{},
		&PaymentMethod{}, &Order{}, &OrderItem{}, &OrderStatusHistory{}, &Payment{},
		&OrderOutbox{},
	}
}
