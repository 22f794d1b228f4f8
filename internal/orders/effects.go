package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
)

// Effects is the side-effect batch a transition produces. Subscribers of
// OrderStatusChanged carry it out; callers get it back for inspection.
type Effects struct {
	BuyerNotification enums.NotificationType
	Restock           []eventbus.LineItemRef
	SyncSellers       []uuid.UUID
}

var buyerNotifications = map[enums.OrderStatus]enums.NotificationType{
	enums.OrderStatusConfirmed: enums.NotificationTypeOrderConfirmed,
	enums.OrderStatusShipped:   enums.NotificationTypeOrderShipped,
	enums.OrderStatusDelivered: enums.NotificationTypeOrderDelivered,
	enums.OrderStatusCancelled: enums.NotificationTypeOrderCancelled,
	enums.OrderStatusReturned:  enums.NotificationTypeOrderReturned,
	enums.OrderStatusReviewed:  enums.NotificationTypeOrderReviewed,
}

// BuyerNotificationFor maps a target status to the buyer-facing message type.
func BuyerNotificationFor(status enums.OrderStatus) (enums.NotificationType, bool) {
	t, ok := buyerNotifications[status]
	return t, ok
}

// BuildEffects derives the batch for an order that just changed status.
func BuildEffects(order *models.Order) Effects {
	effects := Effects{}
	if t, ok := BuyerNotificationFor(order.Status); ok {
		effects.BuyerNotification = t
	}
	if order.Status == enums.OrderStatusCancelled || order.Status == enums.OrderStatusReturned {
		effects.Restock = lineRefs(order.Items)
	}
	seen := map[uuid.UUID]struct{}{}
	for _, item := range order.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		effects.SyncSellers = append(effects.SyncSellers, item.SellerID)
	}
	return effects
}
