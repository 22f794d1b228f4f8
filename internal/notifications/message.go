package notifications

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// MessageContext carries the values a message template may interpolate.
type MessageContext struct {
	OrderNumber string
	BuyerName   string
	Total       decimal.Decimal
	Reason      string
}

// Message renders the title and body for a notification type. It has no side
// effects; unknown types fall back to a generic status line.
func Message(t enums.NotificationType, mc MessageContext) (string, string) {
	order := "your order"
	if number := strings.TrimSpace(mc.OrderNumber); number != "" {
		order = "order " + number
	}
	var title, body string
	switch t {
	case enums.NotificationTypeOrderConfirmed:
		title = "Order confirmed"
		body = fmt.Sprintf("The seller confirmed %s.", order)
	case enums.NotificationTypeOrderShipped:
		title = "Order shipped"
		body = fmt.Sprintf("%s is on its way.", capitalize(order))
	case enums.NotificationTypeOrderDelivered:
		title = "Order delivered"
		body = fmt.Sprintf("%s was delivered.", capitalize(order))
	case enums.NotificationTypeOrderCancelled:
		title = "Order cancelled"
		body = fmt.Sprintf("%s was cancelled.", capitalize(order))
	case enums.NotificationTypeOrderReturned:
		title = "Return received"
		body = fmt.Sprintf("We received your return request for %s.", order)
	case enums.NotificationTypeOrderReviewed:
		title = "Thanks for your review"
		body = fmt.Sprintf("Your review of %s was published.", order)
	case enums.NotificationTypeNewOrder:
		title = "New order"
		body = fmt.Sprintf("%s placed %s totalling %s.", buyerOrDefault(mc.BuyerName), order, mc.Total.StringFixed(2))
	case enums.NotificationTypeCancellationRequest:
		title = "Order cancelled by buyer"
		body = fmt.Sprintf("%s cancelled %s.", buyerOrDefault(mc.BuyerName), order)
	case enums.NotificationTypeReturnRequest:
		title = "Return requested"
		body = fmt.Sprintf("%s requested a return for %s.", buyerOrDefault(mc.BuyerName), order)
	case enums.NotificationTypeReturnApproved:
		title = "Return approved"
		body = fmt.Sprintf("The return for %s was approved.", order)
	case enums.NotificationTypeReturnRejected:
		title = "Return rejected"
		body = fmt.Sprintf("The return for %s was rejected.", order)
	default:
		title = "Order update"
		body = fmt.Sprintf("%s was updated.", capitalize(order))
	}
	if reason := strings.TrimSpace(mc.Reason); reason != "" {
		body = fmt.Sprintf("%s Reason: %s", body, reason)
	}
	return title, body
}

func buyerOrDefault(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "A buyer"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
