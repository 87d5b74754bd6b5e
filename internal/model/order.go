package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 订单模型
// TotalAmount = max(0, SubTotal + ShippingFee - DiscountAmount).
type Order struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Code           string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	UserID         string          `gorm:"type:varchar(36);index:idx_order_user_created;not null" json:"user_id"`
	AddressID      string          `gorm:"type:varchar(36);not null" json:"address_id"`
	DiscountCodeID *string         `gorm:"type:varchar(36)" json:"discount_code_id,omitempty"`
	SubTotal       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"sub_total"`
	ShippingFee    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"shipping_fee"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	PointsUsed     int64           `gorm:"not null;default:0" json:"points_used"`
	PointsEarned   int64           `gorm:"not null;default:0" json:"points_earned"`
	Note           string          `gorm:"type:varchar(500)" json:"note"`
	Status         OrderStatus     `gorm:"type:varchar(16);index:idx_order_status_modified;not null" json:"status"`
	CreatedAt      time.Time       `gorm:"index:idx_order_user_created;not null" json:"created_at"`
	CreatedBy      string          `gorm:"type:varchar(36)" json:"created_by"`
	ModifiedAt     time.Time       `gorm:"index:idx_order_status_modified;not null" json:"modified_at"`
	ModifiedBy     string          `gorm:"type:varchar(36)" json:"modified_by"`
}

func (Order) TableName() string { return "orders" }

// OrderItem carries price and name snapshots taken at checkout.
type OrderItem struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID     string          `gorm:"type:varchar(36);index;not null" json:"order_id"`
	ProductID   string          `gorm:"type:varchar(36);not null" json:"product_id"`
	VariantID   *string         `gorm:"type:varchar(36)" json:"variant_id,omitempty"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	ProductName string          `gorm:"type:varchar(255)" json:"product_name"`
	VariantName string          `gorm:"type:varchar(255)" json:"variant_name"`
}

func (OrderItem) TableName() string { return "order_items" }

// OrderStatusHistory is append-only.
type OrderStatusHistory struct {
	ID         string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID    string      `gorm:"type:varchar(36);not null;uniqueIndex:idx_history_order_seq,priority:1" json:"order_id"`
	Seq        int64       `gorm:"not null;uniqueIndex:idx_history_order_seq,priority:2" json:"seq"` // per order, starts at 1
	Status     OrderStatus `gorm:"type:varchar(16);not null" json:"status"`
	Reason     *string     `gorm:"type:varchar(500)" json:"reason,omitempty"`
	ModifiedAt time.Time   `gorm:"not null" json:"modified_at"`
	ModifiedBy string      `gorm:"type:varchar(36)" json:"modified_by"`
}

func (OrderStatusHistory) TableName() string { return "order_status_histories" }

type PaymentMethod struct {
	ID   string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Code string `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Name string `gorm:"type:varchar(100)" json:"name"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

// PaymentMethodPoints is the code of the loyalty-point payment method.
const PaymentMethodPoints = "points"

type Payment struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID         string          `gorm:"type:varchar(36);index;not null" json:"order_id"`
	PaymentMethodID string          `gorm:"type:varchar(36);not null" json:"payment_method_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status          PaymentStatus   `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	CreatedBy       string          `gorm:"type:varchar(36)" json:"created_by"`
}

func (Payment) TableName() string { return "payments" }
