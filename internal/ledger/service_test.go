package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	client, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.AutoMigrate(&models.InventoryItem{}, &models.InventoryLedgerEntry{}))

	svc, err := NewService(NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	require.Error(t, err)
}

func TestDeductAndCancelRestock(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	order := uuid.New()

	require.NoError(t, svc.SetStock(ctx, product, 50))

	res, err := svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 3, OrderID: order})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 50, res.Entry.StockBefore)
	assert.Equal(t, 47, res.Entry.StockAfter)

	available, err := svc.Available(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 47, available)

	_, err = svc.Restock(ctx, RestockInput{ProductID: product, Quantity: 3, OrderID: order, Reason: enums.LedgerReasonCancelRestock})
	require.NoError(t, err)

	available, err = svc.Available(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 50, available)

	entries, err := svc.EntriesByReference(ctx, order)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestDeductIsIdempotentPerOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	order := uuid.New()
	require.NoError(t, svc.SetStock(ctx, product, 10))

	first, err := svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 2, OrderID: order})
	require.NoError(t, err)
	second, err := svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 2, OrderID: order})
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	available, err := svc.Available(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 8, available)
}

func TestDeductInsufficientStock(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	require.NoError(t, svc.SetStock(ctx, product, 1))

	_, err := svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 2, OrderID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	available, err := svc.Available(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}

func TestRestockRejectsNonRestockReason(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Restock(context.Background(), RestockInput{
		ProductID: uuid.New(),
		Quantity:  1,
		OrderID:   uuid.New(),
		Reason:    enums.LedgerReasonOnlineSale,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAdjustCannotGoNegative(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	require.NoError(t, svc.SetStock(ctx, product, 4))

	_, err := svc.Adjust(ctx, AdjustInput{ProductID: product, Delta: -5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	entry, err := svc.Adjust(ctx, AdjustInput{ProductID: product, Delta: -4, Note: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, 0, entry.StockAfter)
	require.NotNil(t, entry.Note)
	assert.Equal(t, "damaged", *entry.Note)

	entries, err := svc.Entries(ctx, product)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCheckAvailabilitySumsPerProduct(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	require.NoError(t, svc.SetStock(ctx, product, 5))

	require.NoError(t, svc.CheckAvailability(ctx, []StockRequest{
		{ProductID: product, Name: "Kettle", Quantity: 2},
		{ProductID: product, Name: "Kettle", Quantity: 3},
	}))

	err := svc.CheckAvailability(ctx, []StockRequest{
		{ProductID: product, Name: "Kettle", Quantity: 4},
		{ProductID: product, Name: "Kettle", Quantity: 2},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 6, details["requested"])
	assert.Equal(t, 5, details["available"])
}

func TestHandleEventRestocksOnce(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	order := uuid.New()
	require.NoError(t, svc.SetStock(ctx, product, 10))
	_, err := svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 3, OrderID: order})
	require.NoError(t, err)

	event := eventbus.OrderStatusChanged{
		OrderID: order,
		From:    enums.OrderStatusDelivered,
		To:      enums.OrderStatusReturned,
		Items: []eventbus.LineItemRef{
			{ProductID: product, Quantity: 1},
			{ProductID: product, Quantity: 2},
		},
	}
	require.NoError(t, svc.HandleEvent(ctx, event))
	require.NoError(t, svc.HandleEvent(ctx, event))

	available, err := svc.Available(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}

func TestHandleEventIgnoresOtherTransitions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	order := uuid.New()

	require.NoError(t, svc.HandleEvent(ctx, eventbus.OrderStatusChanged{
		OrderID: order,
		To:      enums.OrderStatusShipped,
		Items:   []eventbus.LineItemRef{{ProductID: uuid.New(), Quantity: 1}},
	}))
	entries, err := svc.EntriesByReference(ctx, order)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCancelOfUndeductedOrderRestocksNothing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	winner, loser := uuid.New(), uuid.New()
	require.NoError(t, svc.SetStock(ctx, product, 5))

	_, err := svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 5, OrderID: winner})
	require.NoError(t, err)
	_, err = svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 5, OrderID: loser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	require.NoError(t, svc.HandleEvent(ctx, eventbus.OrderStatusChanged{
		OrderID: loser,
		From:    enums.OrderStatusPending,
		To:      enums.OrderStatusCancelled,
		Items:   []eventbus.LineItemRef{{ProductID: product, Quantity: 5}},
	}))

	available, err := svc.Available(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 0, available)

	entries, err := svc.EntriesByReference(ctx, loser)
	require.NoError(t, err)
	assert.Empty(t, entries)

	res, err := svc.Restock(ctx, RestockInput{ProductID: product, Quantity: 5, OrderID: loser, Reason: enums.LedgerReasonCancelRestock})
	require.NoError(t, err)
	assert.True(t, res.NothingSold)
	assert.Nil(t, res.Entry)
}

func TestRestockIsCappedAtQuantitySold(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	product := uuid.New()
	order := uuid.New()
	require.NoError(t, svc.SetStock(ctx, product, 10))
	_, err := svc.Deduct(ctx, DeductInput{ProductID: product, Quantity: 2, OrderID: order})
	require.NoError(t, err)

	res, err := svc.Restock(ctx, RestockInput{ProductID: product, Quantity: 7, OrderID: order, Reason: enums.LedgerReasonReturnRestock})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.Equal(t, 2, res.Entry.Delta)

	available, err := svc.Available(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}
