package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

var allStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusConfirmed,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
	enums.OrderStatusCancelled,
	enums.OrderStatusReturned,
	enums.OrderStatusReviewed,
}

func TestCanTransitionMatchesAdjacency(t *testing.T) {
	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderStatusPending, enums.OrderStatusConfirmed}:   true,
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:   true,
		{enums.OrderStatusConfirmed, enums.OrderStatusShipped}:   true,
		{enums.OrderStatusConfirmed, enums.OrderStatusCancelled}: true,
		{enums.OrderStatusShipped, enums.OrderStatusDelivered}:   true,
		{enums.OrderStatusShipped, enums.OrderStatusCancelled}:   true,
		{enums.OrderStatusDelivered, enums.OrderStatusReturned}:  true,
		{enums.OrderStatusDelivered, enums.OrderStatusReviewed}:  true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, allowed[[2]enums.OrderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, status := range allStatuses {
		if status.IsTerminal() {
			assert.Empty(t, NextStatuses(status), status)
		} else {
			assert.NotEmpty(t, NextStatuses(status), status)
		}
	}
}

func TestReturnEligibleWindow(t *testing.T) {
	delivered := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	order := &models.Order{CreatedAt: delivered.AddDate(0, 0, -4), DeliveredAt: &delivered}

	assert.True(t, ReturnEligible(order, delivered))
	assert.True(t, ReturnEligible(order, time.Date(2024, 3, 8, 23, 59, 0, 0, time.UTC)))
	assert.False(t, ReturnEligible(order, time.Date(2024, 3, 9, 0, 1, 0, 0, time.UTC)))
}

func TestReturnEligibleFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	order := &models.Order{CreatedAt: created}

	assert.True(t, ReturnEligible(order, created.AddDate(0, 0, 7)))
	assert.False(t, ReturnEligible(order, created.AddDate(0, 0, 8)))
}

func TestReturnEligibleWithoutTimestampsIsClosed(t *testing.T) {
	assert.False(t, ReturnEligible(&models.Order{}, time.Now()))
	assert.False(t, ReturnEligible(nil, time.Now()))
}

func TestReturnEligibleUsesUTCDays(t *testing.T) {
	zone := time.FixedZone("UTC+8", 8*3600)
	// 2024-03-01 01:00 local is still 2024-02-29 in UTC.
	delivered := time.Date(2024, 3, 1, 1, 0, 0, 0, zone)
	order := &models.Order{DeliveredAt: &delivered}

	assert.True(t, ReturnEligible(order, time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)))
	assert.False(t, ReturnEligible(order, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)))
}

func TestCheckConsistency(t *testing.T) {
	reason := "changed my mind"
	cases := []struct {
		name    string
		order   models.Order
		wantErr bool
	}{
		{name: "pending", order: models.Order{Status: enums.OrderStatusPending}},
		{name: "cancelled with reason", order: models.Order{Status: enums.OrderStatusCancelled, CancelReason: &reason}},
		{name: "cancelled without reason", order: models.Order{Status: enums.OrderStatusCancelled}, wantErr: true},
		{name: "returned without request", order: models.Order{Status: enums.OrderStatusReturned}, wantErr: true},
		{name: "request without returned", order: models.Order{Status: enums.OrderStatusDelivered, ReturnRequest: &models.ReturnRequest{}}, wantErr: true},
		{name: "reviewed without reviews", order: models.Order{Status: enums.OrderStatusReviewed}, wantErr: true},
		{name: "reviews on delivered", order: models.Order{Status: enums.OrderStatusDelivered, Reviews: []models.Review{{}}}, wantErr: true},
		{name: "unknown status", order: models.Order{Status: "lost"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckConsistency(&tc.order)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCloneSharesNoMutableState(t *testing.T) {
	line2 := "Unit 4"
	order := &models.Order{
		ID:              uuid.New(),
		Status:          enums.OrderStatusReturned,
		ShippingAddress: types.Address{FullName: "Ana", Line2: &line2},
		Items:           []models.OrderLineItem{{ID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(5)}},
		ReturnRequest:   &models.ReturnRequest{EvidenceFiles: types.StringList{"a.jpg"}},
	}

	clone := Clone(order)
	clone.Items[0].Quantity = 9
	*clone.ShippingAddress.Line2 = "changed"
	clone.ReturnRequest.EvidenceFiles[0] = "b.jpg"

	assert.Equal(t, 1, order.Items[0].Quantity)
	assert.Equal(t, "Unit 4", *order.ShippingAddress.Line2)
	assert.Equal(t, "a.jpg", order.ReturnRequest.EvidenceFiles[0])
}

func TestRoleMayTarget(t *testing.T) {
	assert.True(t, roleMayTarget(enums.ActorRoleBuyer, enums.OrderStatusPending, enums.OrderStatusCancelled))
	assert.False(t, roleMayTarget(enums.ActorRoleBuyer, enums.OrderStatusShipped, enums.OrderStatusCancelled))
	assert.False(t, roleMayTarget(enums.ActorRoleBuyer, enums.OrderStatusPending, enums.OrderStatusConfirmed))
	assert.True(t, roleMayTarget(enums.ActorRoleSeller, enums.OrderStatusConfirmed, enums.OrderStatusShipped))
	assert.False(t, roleMayTarget(enums.ActorRoleSeller, enums.OrderStatusShipped, enums.OrderStatusCancelled))
	assert.False(t, roleMayTarget(enums.ActorRoleSeller, enums.OrderStatusDelivered, enums.OrderStatusReviewed))
	assert.True(t, roleMayTarget(enums.ActorRoleAdmin, enums.OrderStatusShipped, enums.OrderStatusCancelled))
	assert.True(t, roleMayTarget(enums.ActorRoleSystem, enums.OrderStatusShipped, enums.OrderStatusCancelled))
}

func TestBuildEffects(t *testing.T) {
	sellerA, sellerB := uuid.New(), uuid.New()
	order := &models.Order{
		Status: enums.OrderStatusCancelled,
		Items: []models.OrderLineItem{
			{ProductID: uuid.New(), SellerID: sellerA, Quantity: 1},
			{ProductID: uuid.New(), SellerID: sellerB, Quantity: 2},
			{ProductID: uuid.New(), SellerID: sellerA, Quantity: 3},
		},
	}
	effects := BuildEffects(order)
	assert.Equal(t, enums.NotificationTypeOrderCancelled, effects.BuyerNotification)
	require.Len(t, effects.Restock, 3)
	assert.Equal(t, []uuid.UUID{sellerA, sellerB}, effects.SyncSellers)

	order.Status = enums.OrderStatusShipped
	effects = BuildEffects(order)
	assert.Equal(t, enums.NotificationTypeOrderShipped, effects.BuyerNotification)
	assert.Empty(t, effects.Restock)
}
