package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// SellerOrder is the per-seller projection of an order. It shares no rows
// with the buyer record; status and settlement are synced from order events.
type SellerOrder struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_seller_orders_order_seller,priority:1"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_seller_orders_order_seller,priority:2;index"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	BuyerName         string                  `gorm:"column:buyer_name;not null;default:''"`
	OrderNumber       string                  `gorm:"column:order_number;not null"`
	Status            enums.OrderStatus       `gorm:"column:status;type:text;not null"`
	PaymentMethodType enums.PaymentMethodType `gorm:"column:payment_method_type;type:text;not null"`
	PaymentSettled    bool                    `gorm:"column:payment_settled;not null;default:false"`
	ShippingAddress   types.Address           `gorm:"column:shipping_address;type:jsonb;not null"`
	Total             decimal.Decimal         `gorm:"column:total;type:numeric(14,2);not null"`
	CreatedAt         time.Time               `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;not null"`

	Items []SellerOrderItem `gorm:"foreignKey:SellerOrderID;references:ID"`
}

// SellerOrderItem is a copy of an order line item owned by one projection.
type SellerOrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerOrderID uuid.UUID       `gorm:"column:seller_order_id;type:uuid;not null;index"`
	LineItemID    uuid.UUID       `gorm:"column:line_item_id;type:uuid;not null"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name          string          `gorm:"column:name;not null"`
	Variant       string          `gorm:"column:variant;not null;default:''"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Quantity      int             `gorm:"column:quantity;not null"`
}
