package reviews

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/internal/localstore"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
	"github.com/angelmondragon/marketplace-orders/pkg/snapshot"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type harness struct {
	repo    Repository
	engine  *orders.Engine
	service *Service
	events  []eventbus.OrderStatusChanged
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.AutoMigrate(&models.Review{}))

	store, err := localstore.New(snapshot.NewMemoryStore(), "reviews-test")
	require.NoError(t, err)

	h := &harness{repo: NewRepository(client.DB())}
	bus := eventbus.New(nil)
	bus.Subscribe("recorder", func(_ context.Context, event eventbus.Event) error {
		if changed, ok := event.(eventbus.OrderStatusChanged); ok {
			h.events = append(h.events, changed)
		}
		return nil
	})
	h.engine, err = orders.NewEngine(store, bus, nil, orders.Options{})
	require.NoError(t, err)
	h.service, err = NewService(h.repo, h.engine, nil)
	require.NoError(t, err)
	return h
}

func (h *harness) orderIn(t *testing.T, buyer uuid.UUID, status enums.OrderStatus, lines int) *models.Order {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-" + uuid.NewString()[:8],
		BuyerID:       buyer,
		Status:        enums.OrderStatusPending,
		PaymentMethod: types.PaymentMethod{Type: enums.PaymentMethodTypeCOD},
		Total:         decimal.NewFromInt(int64(lines) * 10),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := 0; i < lines; i++ {
		order.Items = append(order.Items, models.OrderLineItem{
			ID: uuid.New(), ProductID: uuid.New(), SellerID: uuid.New(),
			Name: fmt.Sprintf("item-%d", i), Quantity: 1, UnitPrice: decimal.NewFromInt(10), Position: i,
		})
	}
	_, err := h.engine.Create(ctx, order)
	require.NoError(t, err)
	path := []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusShipped, enums.OrderStatusDelivered}
	for _, target := range path {
		if order.Status == status {
			break
		}
		_, err := h.engine.Transition(ctx, orders.TransitionInput{OrderID: order.ID, Target: target})
		require.NoError(t, err)
		order.Status = target
	}
	h.events = nil
	return order
}

func TestSubmitAllItemsMovesOrderToReviewed(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	order := h.orderIn(t, buyer, enums.OrderStatusDelivered, 2)

	result, err := h.service.Submit(context.Background(), SubmitInput{
		OrderID: order.ID,
		BuyerID: buyer,
		Items: []ItemReview{
			{LineItemID: order.Items[0].ID, Rating: 5, Comment: " great "},
			{LineItemID: order.Items[1].ID, Rating: 4, Images: []string{"a.jpg"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.True(t, result.Items[0].Accepted)
	assert.Equal(t, "great", result.Items[0].Review.Comment)
	assert.True(t, result.Reviewed)
	assert.Equal(t, enums.OrderStatusReviewed, result.Order.Status)
	assert.Len(t, result.Order.Reviews, 2)

	require.Len(t, h.events, 1)
	assert.Equal(t, enums.OrderStatusReviewed, h.events[0].To)
}

func TestPartialSubmissionKeepsOrderDelivered(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	order := h.orderIn(t, buyer, enums.OrderStatusDelivered, 2)
	ctx := context.Background()

	result, err := h.service.Submit(ctx, SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: order.Items[0].ID, Rating: 3}},
	})
	require.NoError(t, err)
	assert.False(t, result.Reviewed)
	assert.Equal(t, enums.OrderStatusDelivered, result.Order.Status)
	assert.True(t, result.Order.Items[0].ReviewSubmitted)
	assert.False(t, result.Order.Items[1].ReviewSubmitted)
	assert.Empty(t, h.events)

	result, err = h.service.Submit(ctx, SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: order.Items[1].ID, Rating: 2}},
	})
	require.NoError(t, err)
	assert.True(t, result.Reviewed)
	assert.Len(t, result.Order.Reviews, 2)
}

func TestSecondReviewOfSameItemIsRejected(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	order := h.orderIn(t, buyer, enums.OrderStatusDelivered, 2)
	line := order.Items[0].ID

	result, err := h.service.Submit(context.Background(), SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: line, Rating: 5}, {LineItemID: line, Rating: 1}},
	})
	require.NoError(t, err)
	assert.True(t, result.Items[0].Accepted)
	assert.False(t, result.Items[1].Accepted)
	assert.True(t, pkgerrors.IsCode(result.Items[1].Err, pkgerrors.CodeAlreadyReviewed))

	stored, err := h.repo.FindByLineItem(context.Background(), line, buyer)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 5, stored.Rating)
}

func TestStoredReviewWinsOverLaterSubmission(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	order := h.orderIn(t, buyer, enums.OrderStatusDelivered, 1)
	line := order.Items[0]
	require.NoError(t, h.repo.Create(context.Background(), &models.Review{
		ID: uuid.New(), OrderID: order.ID, LineItemID: line.ID, ProductID: line.ProductID,
		BuyerID: buyer, Rating: 4, CreatedAt: time.Now().UTC(),
	}))

	result, err := h.service.Submit(context.Background(), SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: line.ID, Rating: 1}},
	})
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsCode(result.Items[0].Err, pkgerrors.CodeAlreadyReviewed))
	// the flag catches up with the stored row, which completes the order
	assert.True(t, result.Reviewed)
	require.Len(t, result.Order.Reviews, 1)
	assert.Equal(t, 4, result.Order.Reviews[0].Rating)
}

func TestResubmitAfterOrderReviewedAnswersPerItem(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	order := h.orderIn(t, buyer, enums.OrderStatusDelivered, 1)
	line := order.Items[0].ID
	ctx := context.Background()

	first, err := h.service.Submit(ctx, SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: line, Rating: 5, Comment: "first"}},
	})
	require.NoError(t, err)
	require.True(t, first.Reviewed)
	h.events = nil

	again, err := h.service.Submit(ctx, SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: line, Rating: 1, Comment: "second"}},
	})
	require.NoError(t, err)
	require.Len(t, again.Items, 1)
	assert.False(t, again.Items[0].Accepted)
	assert.True(t, pkgerrors.IsCode(again.Items[0].Err, pkgerrors.CodeAlreadyReviewed))
	assert.False(t, again.Reviewed)
	assert.Equal(t, enums.OrderStatusReviewed, again.Order.Status)
	assert.Empty(t, h.events)

	stored, err := h.repo.FindByLineItem(ctx, line, buyer)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 5, stored.Rating)
	assert.Equal(t, "first", stored.Comment)
}

func TestRepositoryRejectsDuplicate(t *testing.T) {
	h := newHarness(t)
	review := models.Review{ID: uuid.New(), OrderID: uuid.New(), LineItemID: uuid.New(), ProductID: uuid.New(), BuyerID: uuid.New(), Rating: 5, CreatedAt: time.Now()}
	require.NoError(t, h.repo.Create(context.Background(), &review))
	dup := review
	dup.ID = uuid.New()
	assert.ErrorIs(t, h.repo.Create(context.Background(), &dup), errDuplicateReview)
}

func TestSubmitRequiresDeliveredOrder(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	order := h.orderIn(t, buyer, enums.OrderStatusShipped, 1)

	_, err := h.service.Submit(context.Background(), SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: order.Items[0].ID, Rating: 5}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestSubmitByOtherBuyerIsForbidden(t *testing.T) {
	h := newHarness(t)
	order := h.orderIn(t, uuid.New(), enums.OrderStatusDelivered, 1)

	_, err := h.service.Submit(context.Background(), SubmitInput{
		OrderID: order.ID, BuyerID: uuid.New(),
		Items: []ItemReview{{LineItemID: order.Items[0].ID, Rating: 5}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestUnknownLineItemIsPerItemError(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()
	order := h.orderIn(t, buyer, enums.OrderStatusDelivered, 1)

	result, err := h.service.Submit(context.Background(), SubmitInput{
		OrderID: order.ID, BuyerID: buyer,
		Items: []ItemReview{{LineItemID: uuid.New(), Rating: 5}},
	})
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsCode(result.Items[0].Err, pkgerrors.CodeNotFound))
	assert.False(t, result.Reviewed)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	cases := map[string]SubmitInput{
		"no items":      {OrderID: uuid.New(), BuyerID: uuid.New()},
		"rating zero":   {OrderID: uuid.New(), BuyerID: uuid.New(), Items: []ItemReview{{LineItemID: uuid.New(), Rating: 0}}},
		"rating six":    {OrderID: uuid.New(), BuyerID: uuid.New(), Items: []ItemReview{{LineItemID: uuid.New(), Rating: 6}}},
		"six images":    {OrderID: uuid.New(), BuyerID: uuid.New(), Items: []ItemReview{{LineItemID: uuid.New(), Rating: 4, Images: []string{"1", "2", "3", "4", "5", "6"}}}},
		"missing buyer": {OrderID: uuid.New(), Items: []ItemReview{{LineItemID: uuid.New(), Rating: 4}}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.service.Submit(context.Background(), input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	product := uuid.New()
	for _, rating := range []int{5, 4, 4} {
		require.NoError(t, h.repo.Create(context.Background(), &models.Review{
			ID: uuid.New(), OrderID: uuid.New(), LineItemID: uuid.New(), ProductID: product,
			BuyerID: uuid.New(), Rating: rating, CreatedAt: time.Now(),
		}))
	}
	summary, err := h.service.Summary(context.Background(), product)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 2, summary.Stars[4])
	assert.True(t, summary.Average.Equal(decimal.RequireFromString("4.33")))
}
