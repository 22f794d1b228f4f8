package enums

import "fmt"

// NotificationType maps to the notification_type column in Postgres.
type NotificationType string

const (
	NotificationTypeOrderConfirmed NotificationType = "order_confirmed"
	NotificationTypeOrderShipped   NotificationType = "order_shipped"
	NotificationTypeOrderDelivered NotificationType = "order_delivered"
	NotificationTypeOrderCancelled NotificationType = "order_cancelled"
	NotificationTypeOrderReturned  NotificationType = "order_returned"
	NotificationTypeOrderReviewed  NotificationType = "order_reviewed"

	NotificationTypeNewOrder            NotificationType = "new_order"
	NotificationTypeCancellationRequest NotificationType = "cancellation_request"
	NotificationTypeReturnRequest       NotificationType = "return_request"
	NotificationTypeReturnApproved      NotificationType = "return_approved"
	NotificationTypeReturnRejected      NotificationType = "return_rejected"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderConfirmed,
	NotificationTypeOrderShipped,
	NotificationTypeOrderDelivered,
	NotificationTypeOrderCancelled,
	NotificationTypeOrderReturned,
	NotificationTypeOrderReviewed,
	NotificationTypeNewOrder,
	NotificationTypeCancellationRequest,
	NotificationTypeReturnRequest,
	NotificationTypeReturnApproved,
	NotificationTypeReturnRejected,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// Party identifies which side of an order a notification is addressed to.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// IsValid reports whether the party is known.
func (p Party) IsValid() bool {
	return p == PartyBuyer || p == PartySeller
}

// ParseParty converts raw strings into Party.
func ParseParty(value string) (Party, error) {
	p := Party(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid party %q", value)
	}
	return p, nil
}
