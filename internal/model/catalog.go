package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 商品
type Product struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Price         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	StockQuantity int             `gorm:"not null;default:0" json:"stock_quantity"`
	SoldQuantity  int             `gorm:"not null;default:0" json:"sold_quantity"`
	Status        StockStatus     `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// ProductVariant 商品规格; a nil Price means the product price applies.
type ProductVariant struct {
	ID            string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProductID     string              `gorm:"type:varchar(36);index;not null" json:"product_id"`
	Name          string              `gorm:"type:varchar(255);not null" json:"name"`
	Price         decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"price"`
	StockQuantity int                 `gorm:"not null;default:0" json:"stock_quantity"`
	SoldQuantity  int                 `gorm:"not null;default:0" json:"sold_quantity"`
	Status        StockStatus         `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (ProductVariant) TableName() string { return "product_variants" }
