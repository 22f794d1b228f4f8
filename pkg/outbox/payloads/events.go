package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// OrderLine is the wire form of an order line item.
type OrderLine struct {
	LineItemID uuid.UUID       `json:"line_item_id"`
	ProductID  uuid.UUID       `json:"product_id"`
	SellerID   uuid.UUID       `json:"seller_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent signals a new order accepted at checkout.
type OrderCreatedEvent struct {
	OrderID           uuid.UUID               `json:"order_id"`
	OrderNumber       string                  `json:"order_number"`
	BuyerID           uuid.UUID               `json:"buyer_id"`
	PaymentMethodType enums.PaymentMethodType `json:"payment_method_type"`
	IsPaid            bool                    `json:"is_paid"`
	Total             decimal.Decimal         `json:"total"`
	Lines             []OrderLine             `json:"lines"`
	CreatedAt         time.Time               `json:"created_at"`
}

// OrderStatusChangedEvent mirrors every persisted transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	BuyerID     uuid.UUID         `json:"buyer_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Note        string            `json:"note,omitempty"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// ReturnRequestedEvent is emitted alongside the returned transition.
type ReturnRequestedEvent struct {
	OrderID      uuid.UUID            `json:"order_id"`
	BuyerID      uuid.UUID            `json:"buyer_id"`
	Reason       enums.ReturnReason   `json:"reason"`
	Solution     enums.ReturnSolution `json:"solution"`
	RefundAmount decimal.Decimal      `json:"refund_amount"`
}

// ReviewSubmittedEvent is emitted per accepted item review.
type ReviewSubmittedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	LineItemID uuid.UUID `json:"line_item_id"`
	ProductID  uuid.UUID `json:"product_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	Rating     int       `json:"rating"`
}
