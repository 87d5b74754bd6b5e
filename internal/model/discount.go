package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Discount 优惠活动定义
type Discount struct {
	ID               string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	IsPercentage     bool                `gorm:"not null" json:"is_percentage"`
	Value            decimal.Decimal     `gorm:"type:decimal(18,2);not null" json:"value"`
	MinOrderAmount   decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"min_order_amount"`
	MaxDiscount      decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"max_discount"`
	FromDate         time.Time           `gorm:"not null" json:"from_date"`
	ToDate           time.Time           `gorm:"not null" json:"to_date"`
	UsageLimit       *int                `json:"usage_limit"`
	UsedCount        int                 `gorm:"not null;default:0" json:"used_count"`
	MinQty           *int                `json:"min_qty"`
	MaxQty           *int                `json:"max_qty"`
	IsFirstOrderOnly bool                `gorm:"not null;default:false" json:"is_first_order_only"`
	Status           RecordStatus        `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func (Discount) TableName() string { return "discounts" }

// DiscountProduct restricts a discount to a set of products. No rows means unrestricted.
type DiscountProduct struct {
	DiscountID string `gorm:"primaryKey;type:varchar(36)"`
	ProductID  string `gorm:"primaryKey;type:varchar(36)"`
}

func (DiscountProduct) TableName() string { return "discount_products" }

// DiscountCode 优惠码; UserID nil means a public code.
type DiscountCode struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DiscountID string     `gorm:"type:varchar(36);index;not null" json:"discount_id"`
	UserID     *string    `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Code       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	SingleUse  bool       `gorm:"not null;default:false" json:"single_use"`
	FromDate   time.Time  `gorm:"not null" json:"from_date"`
	ToDate     time.Time  `gorm:"not null" json:"to_date"`
	Status     CodeStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (DiscountCode) TableName() string { return "discount_codes" }
