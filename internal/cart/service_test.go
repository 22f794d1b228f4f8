package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	client, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.AutoMigrate(&models.CartItem{}))

	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)
	return svc
}

func kettle(qty int) AddItemInput {
	return AddItemInput{
		ProductID: uuid.MustParse("5b7c1e0e-7a43-4f3b-9a53-6f3f1bde0c11"),
		SellerID:  uuid.MustParse("0f0a4b1c-2d3e-4f50-8a6b-7c8d9e0f1a2b"),
		Name:      "Kettle",
		Variant:   "red",
		UnitPrice: decimal.NewFromInt(120),
		Quantity:  qty,
	}
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestAddItemMergesSameProductAndVariant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	buyer := uuid.New()

	_, err := svc.AddItem(ctx, buyer, kettle(1))
	require.NoError(t, err)
	merged, err := svc.AddItem(ctx, buyer, kettle(2))
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Quantity)

	blue := kettle(1)
	blue.Variant = "blue"
	_, err = svc.AddItem(ctx, buyer, blue)
	require.NoError(t, err)

	items, err := svc.Items(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, Total(items).Equal(decimal.NewFromInt(480)))
}

func TestAddItemValidation(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AddItem(context.Background(), uuid.New(), kettle(0))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.AddItem(context.Background(), uuid.Nil, kettle(1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	buyer := uuid.New()
	item, err := svc.AddItem(ctx, buyer, kettle(1))
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(ctx, buyer, item.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	updated, err := svc.UpdateQuantity(ctx, buyer, item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)

	_, err = svc.UpdateQuantity(ctx, uuid.New(), item.ID, 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	buyer := uuid.New()
	other := uuid.New()

	item, err := svc.AddItem(ctx, buyer, kettle(1))
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, other, kettle(1))
	require.NoError(t, err)

	assert.True(t, pkgerrors.IsCode(svc.RemoveItem(ctx, other, item.ID), pkgerrors.CodeNotFound))
	require.NoError(t, svc.RemoveItem(ctx, buyer, item.ID))

	require.NoError(t, svc.Clear(ctx, other))
	items, err := svc.Items(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestItemsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	buyer := uuid.New()
	_, err := svc.AddItem(ctx, buyer, kettle(2))
	require.NoError(t, err)

	items, err := svc.Items(ctx, buyer)
	require.NoError(t, err)
	items[0].Quantity = 99

	again, err := svc.Items(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, 2, again[0].Quantity)
}
