package eventbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Event is anything published on the bus.
type Event interface {
	EventName() string
}

// LineItemRef carries what subscribers need from an order line without
// exposing the order record itself.
type LineItemRef struct {
	LineItemID uuid.UUID
	ProductID  uuid.UUID
	SellerID   uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
}

// OrderStatusChanged is published after every applied status transition.
type OrderStatusChanged struct {
	OrderID     uuid.UUID
	OrderNumber string
	BuyerID     uuid.UUID
	From        enums.OrderStatus
	To          enums.OrderStatus
	Note        string
	ActorID     *uuid.UUID
	ActorRole   enums.ActorRole
	Items       []LineItemRef
	Total       decimal.Decimal
	OccurredAt  time.Time
}

func (OrderStatusChanged) EventName() string { return "order.status_changed" }

// SellerIDs returns the distinct sellers on the order in first-seen order.
func (e OrderStatusChanged) SellerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(e.Items))
	out := make([]uuid.UUID, 0, len(e.Items))
	for _, item := range e.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		out = append(out, item.SellerID)
	}
	return out
}

// OrderCreated is published once checkout has persisted a new order.
type OrderCreated struct {
	OrderID     uuid.UUID
	OrderNumber string
	BuyerID     uuid.UUID
	Items       []LineItemRef
	Total       decimal.Decimal
	OccurredAt  time.Time
}

func (OrderCreated) EventName() string { return "order.created" }
