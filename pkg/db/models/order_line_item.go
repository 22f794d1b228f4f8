package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLineItem captures the snapshot of each cart item at checkout.
type OrderLineItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Position        int             `gorm:"column:position;not null;default:0"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	SellerID        uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	Name            string          `gorm:"column:name;not null"`
	Variant         string          `gorm:"column:variant;not null;default:''"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	ReviewSubmitted bool            `gorm:"column:review_submitted;not null;default:false"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
