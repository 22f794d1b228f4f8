package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type fakeBackend struct {
	mu            sync.Mutex
	orders        map[uuid.UUID]*models.Order
	changes       []StatusChange
	statusErr     error
	createErr     error
	fetchErr      error
	fetchCalls    int
	beforePersist func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeBackend) PersistOrderCreate(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.orders[order.ID] = Clone(order)
	return nil
}

func (f *fakeBackend) PersistOrderStatus(ctx context.Context, change StatusChange) error {
	if hook := f.takeHook(); hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	stored, ok := f.orders[change.Order.ID]
	if !ok || stored.Status != change.From {
		return ErrStaleStatus
	}
	f.changes = append(f.changes, change)
	f.orders[change.Order.ID] = Clone(change.Order)
	return nil
}

func (f *fakeBackend) PersistOrderUpdate(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	stored, ok := f.orders[order.ID]
	if !ok || stored.Status != order.Status {
		return ErrStaleStatus
	}
	f.orders[order.ID] = Clone(order)
	return nil
}

func (f *fakeBackend) takeHook() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	hook := f.beforePersist
	f.beforePersist = nil
	return hook
}

func (f *fakeBackend) setStatusErr(err error) {
	f.mu.Lock()
	f.statusErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) storedStatus(id uuid.UUID) enums.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

func (f *fakeBackend) FetchBuyerOrders(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		if order.BuyerID == buyerID {
			out = append(out, *Clone(order))
		}
	}
	return out, nil
}

func (f *fakeBackend) FetchOrderDetail(ctx context.Context, ref string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	for _, order := range f.orders {
		if order.ID.String() == ref || order.OrderNumber == ref {
			return Clone(order), nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) FetchOrdersByStatus(ctx context.Context, status enums.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
	err    error
}

func (b *recordingBus) Publish(ctx context.Context, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return b.err
}

func (b *recordingBus) statusChanges() []eventbus.OrderStatusChanged {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []eventbus.OrderStatusChanged
	for _, event := range b.events {
		if changed, ok := event.(eventbus.OrderStatusChanged); ok {
			out = append(out, changed)
		}
	}
	return out
}

var fixedNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, backend *fakeBackend) (*Engine, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	engine, err := NewEngine(backend, bus, nil, Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return engine, bus
}

func seedOrder(t *testing.T, backend *fakeBackend, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "ORD-20240510-ABC123",
		BuyerID:         uuid.New(),
		Status:          status,
		PaymentMethod:   types.PaymentMethod{Type: enums.PaymentMethodTypeCOD},
		ShippingAddress: types.Address{FullName: "Ana Cruz"},
		Total:           decimal.NewFromInt(300),
		CreatedAt:       fixedNow.Add(-48 * time.Hour),
		UpdatedAt:       fixedNow.Add(-48 * time.Hour),
		Items: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: uuid.New(), SellerID: uuid.New(), Name: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
			{ID: uuid.New(), ProductID: uuid.New(), SellerID: uuid.New(), Name: "Tray", Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
		},
	}
	if status == enums.OrderStatusDelivered {
		delivered := fixedNow.Add(-24 * time.Hour)
		order.DeliveredAt = &delivered
	}
	backend.orders[order.ID] = Clone(order)
	return order
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, &recordingBus{}, nil, Options{})
	require.Error(t, err)
	_, err = NewEngine(newFakeBackend(), nil, nil, Options{})
	require.Error(t, err)
}

func TestTransitionHappyPath(t *testing.T) {
	backend := newFakeBackend()
	engine, bus := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	for _, target := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		res, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: target})
		require.NoError(t, err)
		assert.Equal(t, target, res.Order.Status)
	}

	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DeliveredAt.Equal(fixedNow))

	changes := bus.statusChanges()
	require.Len(t, changes, 3)
	assert.Equal(t, enums.OrderStatusShipped, changes[2].From)
	assert.Equal(t, enums.OrderStatusDelivered, changes[2].To)
	assert.Equal(t, enums.ActorRoleSystem, changes[2].ActorRole)
	require.Len(t, backend.changes, 3)
}

func TestTransitionRejectsMissingEdgeWithoutMutation(t *testing.T) {
	backend := newFakeBackend()
	engine, bus := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusDelivered})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
	assert.Empty(t, bus.statusChanges())
	assert.Empty(t, backend.changes)
}

func TestTerminalOrdersRejectEveryTarget(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	_, err := engine.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "found cheaper"})
	require.NoError(t, err)

	for _, target := range allStatuses {
		note := ""
		if target == enums.OrderStatusCancelled {
			note = "again"
		}
		_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: target, Note: note})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), target)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	_, err := engine.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "   "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
}

func TestCancelStampsReasonAndRestocks(t *testing.T) {
	backend := newFakeBackend()
	engine, bus := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusConfirmed)
	buyer := order.BuyerID

	res, err := engine.Cancel(context.Background(), CancelInput{
		OrderID:     order.ID,
		Reason:      "ordered by mistake",
		CancelledBy: &buyer,
		Role:        enums.ActorRoleBuyer,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Order.CancelReason)
	assert.Equal(t, "ordered by mistake", *res.Order.CancelReason)
	assert.Len(t, res.Effects.Restock, 2)
	assert.Equal(t, enums.NotificationTypeOrderCancelled, res.Effects.BuyerNotification)

	changes := bus.statusChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, "ordered by mistake", changes[0].Note)
}

func TestBuyerCannotCancelShippedOrder(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusShipped)
	buyer := order.BuyerID

	_, err := engine.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "late", CancelledBy: &buyer, Role: enums.ActorRoleBuyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = engine.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "carrier lost parcel", Role: enums.ActorRoleAdmin})
	assert.NoError(t, err)
}

func TestOtherBuyerIsForbidden(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)
	stranger := uuid.New()

	_, err := engine.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "x", CancelledBy: &stranger, Role: enums.ActorRoleBuyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestSellerMustOwnAnItem(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)
	seller := order.Items[1].SellerID
	stranger := uuid.New()

	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed, ActorID: &stranger, ActorRole: enums.ActorRoleSeller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed, ActorID: &seller, ActorRole: enums.ActorRoleSeller})
	assert.NoError(t, err)
}

func TestPersistenceFailureKeepsLocalChange(t *testing.T) {
	backend := newFakeBackend()
	engine, bus := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)
	backend.statusErr = errors.New("connection refused")

	res, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistenceUnavailable))
	require.NotNil(t, res)
	assert.Equal(t, enums.OrderStatusConfirmed, res.Order.Status)

	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
	assert.Equal(t, enums.OrderStatusPending, backend.orders[order.ID].Status)
	assert.Len(t, bus.statusChanges(), 1)
}

func TestSideEffectFailureDoesNotUndoTransition(t *testing.T) {
	backend := newFakeBackend()
	engine, bus := newTestEngine(t, backend)
	bus.err = errors.New("projection store down")
	order := seedOrder(t, backend, enums.OrderStatusPending)

	res, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.Error(t, res.SideEffectErrors)
	assert.Equal(t, enums.OrderStatusConfirmed, backend.orders[order.ID].Status)
}

func TestReturnedRequiresWindow(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusDelivered)
	old := fixedNow.AddDate(0, 0, -8)
	backend.orders[order.ID].DeliveredAt = &old

	_, err := engine.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusReturned,
		Attach: func(o *models.Order) error {
			o.ReturnRequest = &models.ReturnRequest{ID: uuid.New(), OrderID: o.ID}
			return nil
		},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReturnWindowClosed))
}

func TestReturnedWithoutAttachIsInconsistent(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusDelivered)

	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusReturned})
	require.Error(t, err)

	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, got.Status)
}

func TestReviewedRequiresEveryItem(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusDelivered)

	_, err := engine.Mutate(context.Background(), order.ID, func(o *models.Order) error {
		o.Items[0].ReviewSubmitted = true
		return nil
	})
	require.NoError(t, err)

	attach := func(o *models.Order) error {
		o.Reviews = []models.Review{{ID: uuid.New(), OrderID: o.ID}}
		return nil
	}
	_, err = engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusReviewed, Attach: attach})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = engine.Mutate(context.Background(), order.ID, func(o *models.Order) error {
		o.Items[1].ReviewSubmitted = true
		return nil
	})
	require.NoError(t, err)

	res, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusReviewed, Attach: attach})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReviewed, res.Order.Status)
}

func TestMutateCannotChangeStatus(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	_, err := engine.Mutate(context.Background(), order.ID, func(o *models.Order) error {
		o.Status = enums.OrderStatusShipped
		return nil
	})
	require.Error(t, err)

	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
}

func TestStaleTransitionAfterCancelIsRejected(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	_, err := engine.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "no longer needed"})
	require.NoError(t, err)

	_, err = engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	backend := newFakeBackend()
	engine, bus := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for err := range results {
		if err == nil {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Len(t, bus.statusChanges(), 1)
}

func TestCreateRegistersOrder(t *testing.T) {
	backend := newFakeBackend()
	engine, bus := newTestEngine(t, backend)
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-20240510-XYZ789",
		BuyerID:     uuid.New(),
		Status:      enums.OrderStatusPending,
		CreatedAt:   fixedNow,
		Items:       []models.OrderLineItem{{ID: uuid.New(), ProductID: uuid.New(), SellerID: uuid.New(), Quantity: 1}},
	}

	created, err := engine.Create(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, order.ID, created.ID)
	require.Len(t, bus.events, 1)
	_, ok := bus.events[0].(eventbus.OrderCreated)
	assert.True(t, ok)

	detail, err := engine.Detail(context.Background(), "ORD-20240510-XYZ789", &order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, detail.ID)

	other := uuid.New()
	_, err = engine.Detail(context.Background(), order.ID.String(), &other)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateFailureIsReturned(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = errors.New("timeout")
	engine, bus := newTestEngine(t, backend)

	_, err := engine.Create(context.Background(), &models.Order{
		ID:     uuid.New(),
		Status: enums.OrderStatusPending,
		Items:  []models.OrderLineItem{{ID: uuid.New(), Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistenceUnavailable))
	assert.Empty(t, bus.events)
}

func TestListBuyerOrdersPrefersWorkingCopies(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)
	older := seedOrder(t, backend, enums.OrderStatusPending)
	backend.orders[older.ID].BuyerID = order.BuyerID
	backend.orders[older.ID].CreatedAt = order.CreatedAt.Add(-time.Hour)

	backend.statusErr = errors.New("offline")
	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
	require.Error(t, err)

	list, err := engine.ListBuyerOrders(context.Background(), order.BuyerID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, order.ID, list[0].ID)
	assert.Equal(t, enums.OrderStatusConfirmed, list[0].Status)
}

func TestUnknownOrderIsNotFound(t *testing.T) {
	engine, _ := newTestEngine(t, newFakeBackend())
	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: uuid.New(), Target: enums.OrderStatusConfirmed})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestTransitionRejectedWhenStoredStatusMovedOn(t *testing.T) {
	backend := newFakeBackend()
	api, apiBus := newTestEngine(t, backend)
	worker, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)
	buyer := order.BuyerID

	// the worker ships the order between the api's read and its write
	backend.beforePersist = func() {
		_, err := worker.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
		require.NoError(t, err)
		_, err = worker.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusShipped})
		require.NoError(t, err)
	}

	_, err := api.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "changed my mind", CancelledBy: &buyer, Role: enums.ActorRoleBuyer})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, enums.OrderStatusShipped, backend.storedStatus(order.ID))
	assert.Empty(t, apiBus.statusChanges())

	got, err := api.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, got.Status)
	assert.Equal(t, 0, api.Unsynced())
}

func TestEnginesSeeEachOthersTransitions(t *testing.T) {
	backend := newFakeBackend()
	api, _ := newTestEngine(t, backend)
	worker, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)
	buyer := order.BuyerID

	got, err := api.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, got.Status)

	for _, target := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusShipped} {
		_, err := worker.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: target})
		require.NoError(t, err)
	}

	got, err = api.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, got.Status)

	_, err = api.Cancel(context.Background(), CancelInput{OrderID: order.ID, Reason: "too slow", CancelledBy: &buyer, Role: enums.ActorRoleBuyer})
	require.Error(t, err)
	assert.Equal(t, enums.OrderStatusShipped, backend.storedStatus(order.ID))
}

func TestUnsyncedChangeReplaysOnceStoreRecovers(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	backend.setStatusErr(errors.New("connection refused"))
	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistenceUnavailable))
	_, err = engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusShipped})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistenceUnavailable))
	assert.Equal(t, 1, engine.Unsynced())

	backend.setStatusErr(nil)
	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, got.Status)
	assert.Equal(t, enums.OrderStatusShipped, backend.storedStatus(order.ID))
	assert.Equal(t, 0, engine.Unsynced())

	require.Len(t, backend.changes, 1)
	assert.Equal(t, enums.OrderStatusPending, backend.changes[0].From)
	assert.Equal(t, enums.OrderStatusShipped, backend.changes[0].To)
}

func TestUnsyncedChangeDroppedWhenStoreMovedOn(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	backend.setStatusErr(errors.New("connection refused"))
	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
	require.Error(t, err)
	backend.setStatusErr(nil)

	reason := "seller out of stock"
	backend.mu.Lock()
	backend.orders[order.ID].Status = enums.OrderStatusCancelled
	backend.orders[order.ID].CancelReason = &reason
	backend.mu.Unlock()

	got, err := engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	assert.Equal(t, 0, engine.Unsynced())

	_, err = engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusShipped})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestUnsyncedOrderServedWhileStoreIsDown(t *testing.T) {
	backend := newFakeBackend()
	engine, _ := newTestEngine(t, backend)
	order := seedOrder(t, backend, enums.OrderStatusPending)

	backend.setStatusErr(errors.New("connection refused"))
	_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
	require.Error(t, err)

	backend.mu.Lock()
	backend.fetchErr = errors.New("connection refused")
	backend.mu.Unlock()

	got, err := engine.Detail(context.Background(), order.OrderNumber, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
}

func TestEngineDropsSettledOrdersAndLocks(t *testing.T) {
	backend := newFakeBackend()
	bus := &recordingBus{}
	engine, err := NewEngine(backend, bus, nil, Options{MaxUnsynced: 2, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		order := seedOrder(t, backend, enums.OrderStatusPending)
		_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
		require.NoError(t, err)
		_, err = engine.Get(context.Background(), order.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, engine.Unsynced())
	assert.Equal(t, 0, engine.heldLocks())

	backend.setStatusErr(errors.New("connection refused"))
	for i := 0; i < 5; i++ {
		order := seedOrder(t, backend, enums.OrderStatusPending)
		_, err := engine.Transition(context.Background(), TransitionInput{OrderID: order.ID, Target: enums.OrderStatusConfirmed})
		require.Error(t, err)
	}
	assert.Equal(t, 2, engine.Unsynced())
	assert.Equal(t, 0, engine.heldLocks())
}
