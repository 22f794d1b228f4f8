package orders

import (
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// DefaultReturnWindowDays bounds how long after delivery a return is accepted.
const DefaultReturnWindowDays = 7

var adjacency = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
	enums.OrderStatusDelivered: {enums.OrderStatusReturned, enums.OrderStatusReviewed},
}

// CanTransition reports whether from has an edge to to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range adjacency[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from current in one step.
func NextStatuses(current enums.OrderStatus) []enums.OrderStatus {
	next := adjacency[current]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// roleMayTarget limits which side of the marketplace can request a target.
// Late cancellation of a shipped parcel is an operator decision.
func roleMayTarget(role enums.ActorRole, from, to enums.OrderStatus) bool {
	switch role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	case enums.ActorRoleBuyer:
		if to == enums.OrderStatusCancelled {
			return from != enums.OrderStatusShipped
		}
		return to == enums.OrderStatusReturned || to == enums.OrderStatusReviewed
	case enums.ActorRoleSeller:
		switch to {
		case enums.OrderStatusConfirmed, enums.OrderStatusShipped, enums.OrderStatusDelivered:
			return true
		case enums.OrderStatusCancelled:
			return from != enums.OrderStatusShipped
		}
	}
	return false
}

// ReturnEligible applies the default seven day window.
func ReturnEligible(order *models.Order, now time.Time) bool {
	return ReturnEligibleWithin(order, now, DefaultReturnWindowDays)
}

// ReturnEligibleWithin measures the window in UTC calendar days from the
// delivery timestamp, falling back to the creation timestamp. An order with
// neither is never eligible; the window is never anchored on now.
func ReturnEligibleWithin(order *models.Order, now time.Time, days int) bool {
	if order == nil {
		return false
	}
	var reference time.Time
	switch {
	case order.DeliveredAt != nil && !order.DeliveredAt.IsZero():
		reference = *order.DeliveredAt
	case !order.CreatedAt.IsZero():
		reference = order.CreatedAt
	default:
		return false
	}
	return calendarDaysBetween(reference, now) <= days
}

func calendarDaysBetween(from, to time.Time) int {
	start := truncateDay(from.UTC())
	end := truncateDay(to.UTC())
	return int(end.Sub(start).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CheckConsistency verifies the sub-records agree with the status.
func CheckConsistency(order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is nil")
	}
	if !order.Status.IsValid() {
		return fmt.Errorf("unknown status %q", order.Status)
	}
	hasReviews := len(order.Reviews) > 0
	if hasReviews != (order.Status == enums.OrderStatusReviewed) {
		return fmt.Errorf("reviews present=%t with status %s", hasReviews, order.Status)
	}
	hasReturn := order.ReturnRequest != nil
	if hasReturn != (order.Status == enums.OrderStatusReturned) {
		return fmt.Errorf("return request present=%t with status %s", hasReturn, order.Status)
	}
	if order.Status == enums.OrderStatusCancelled && (order.CancelReason == nil || *order.CancelReason == "") {
		return fmt.Errorf("cancelled order without reason")
	}
	return nil
}

// AllItemsReviewed reports whether every line item carries a submitted review.
func AllItemsReviewed(order *models.Order) bool {
	if order == nil || len(order.Items) == 0 {
		return false
	}
	for _, item := range order.Items {
		if !item.ReviewSubmitted {
			return false
		}
	}
	return true
}

// Clone deep copies an order so callers never share slices or pointers with
// the engine's working set.
func Clone(order *models.Order) *models.Order {
	if order == nil {
		return nil
	}
	out := *order
	out.ShippingAddress.Line2 = copyString(order.ShippingAddress.Line2)
	out.DeliveredAt = copyTime(order.DeliveredAt)
	out.TrackingNumber = copyString(order.TrackingNumber)
	out.CancelReason = copyString(order.CancelReason)
	if order.Items != nil {
		out.Items = make([]models.OrderLineItem, len(order.Items))
		copy(out.Items, order.Items)
	}
	if order.ReturnRequest != nil {
		rr := *order.ReturnRequest
		rr.EvidenceFiles = order.ReturnRequest.EvidenceFiles.Clone()
		out.ReturnRequest = &rr
	}
	if order.Reviews != nil {
		out.Reviews = make([]models.Review, len(order.Reviews))
		for i, review := range order.Reviews {
			review.Images = review.Images.Clone()
			out.Reviews[i] = review
		}
	}
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
