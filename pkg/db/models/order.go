package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// Order is the buyer-owned record created at checkout. Status only moves
// through the lifecycle engine.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber         string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	BuyerID             uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index:ix_orders_buyer_created,priority:1"`
	BuyerName           string              `gorm:"column:buyer_name;not null;default:''"`
	Status              enums.OrderStatus   `gorm:"column:status;type:text;not null;index"`
	PaymentMethod       types.PaymentMethod `gorm:"column:payment_method;type:jsonb;not null"`
	ShippingAddress     types.Address       `gorm:"column:shipping_address;type:jsonb;not null"`
	IsPaid              bool                `gorm:"column:is_paid;not null;default:false"`
	Total               decimal.Decimal     `gorm:"column:total;type:numeric(14,2);not null"`
	EstimatedDeliveryAt time.Time           `gorm:"column:estimated_delivery_at;not null"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	TrackingNumber      *string             `gorm:"column:tracking_number"`
	CancelReason        *string             `gorm:"column:cancel_reason"`
	CreatedAt           time.Time           `gorm:"column:created_at;not null;index:ix_orders_buyer_created,priority:2"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;not null"`

	Items         []OrderLineItem `gorm:"foreignKey:OrderID;references:ID"`
	ReturnRequest *ReturnRequest  `gorm:"foreignKey:OrderID;references:ID"`
	Reviews       []Review        `gorm:"foreignKey:OrderID;references:ID"`
}
