package model

import "time"

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Role      Role      `gorm:"type:varchar(16);not null" json:"role"`
	Point     int64     `gorm:"not null;default:0" json:"point"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

type Address struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string       `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Detail    string       `gorm:"type:varchar(500)" json:"detail"`
	Status    RecordStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Address) TableName() string { return "addresses" }

// CartItem 购物车行，下单后删除
type CartItem struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	ProductID string    `gorm:"type:varchar(36);not null" json:"product_id"`
	VariantID *string   `gorm:"type:varchar(36)" json:"variant_id,omitempty"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

func (CartItem) TableName() string { return "cart_items" }

// Setting is a key/value business setting.
type Setting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:varchar(255)" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

const (
	SettingShippingFee         = "shipping_fee"
	SettingPointConversionRate = "point_conversion_rate"
)
