package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
)

// Publisher fans transition events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

// DefaultMaxUnsynced caps how many locally applied but unpersisted orders an
// engine holds at once.
const DefaultMaxUnsynced = 1024

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	ReturnWindowDays int
	MaxUnsynced      int
	Metrics          *metrics.OrderMetrics
	Now              func() time.Time
}

// Engine is the only writer of order status. Every transition re-reads the
// order from the backend and persists with a compare-and-set on the status it
// read. Orders whose change could not be persisted are held in the unsynced
// set and replayed the next time the order is loaded.
type Engine struct {
	backend     Backend
	bus         Publisher
	logg        *logger.Logger
	metrics     *metrics.OrderMetrics
	windowDays  int
	maxUnsynced int
	now         func() time.Time

	mu       sync.Mutex
	unsynced map[uuid.UUID]*unsyncedOrder
	locks    map[uuid.UUID]*orderLock
}

// unsyncedOrder is a local change the backend has not accepted yet. base is
// the stored status the change was computed from.
type unsyncedOrder struct {
	order   *models.Order
	base    enums.OrderStatus
	change  StatusChange
	updated bool
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

// TransitionInput asks for one status change. Attach runs on the working
// copy after the guard passes and before consistency is checked; it is how
// return and review workflows put their sub-records on the order.
type TransitionInput struct {
	OrderID   uuid.UUID
	Target    enums.OrderStatus
	ActorID   *uuid.UUID
	ActorRole enums.ActorRole
	Note      string
	Attach    func(order *models.Order) error
}

// CancelInput mirrors the cancel call exposed to buyers and sellers.
type CancelInput struct {
	OrderID     uuid.UUID
	Reason      string
	CancelledBy *uuid.UUID
	Role        enums.ActorRole
}

// TransitionResult describes an applied transition. When persistence fails
// the result is still returned next to the error: the change stands locally.
type TransitionResult struct {
	Order            *models.Order
	From             enums.OrderStatus
	Effects          Effects
	SideEffectErrors error
}

func NewEngine(backend Backend, bus Publisher, logg *logger.Logger, opts Options) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("order backend required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	window := opts.ReturnWindowDays
	if window <= 0 {
		window = DefaultReturnWindowDays
	}
	maxUnsynced := opts.MaxUnsynced
	if maxUnsynced <= 0 {
		maxUnsynced = DefaultMaxUnsynced
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		backend:     backend,
		bus:         bus,
		logg:        logg,
		metrics:     opts.Metrics,
		windowDays:  window,
		maxUnsynced: maxUnsynced,
		now:         now,
		unsynced:    map[uuid.UUID]*unsyncedOrder{},
		locks:       map[uuid.UUID]*orderLock{},
	}, nil
}

// Create persists a freshly built pending order and registers it. A
// persistence failure is returned and nothing is kept.
func (e *Engine) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order == nil || order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new orders start pending")
	}
	if len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no line items")
	}
	if err := CheckConsistency(order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order record inconsistent")
	}

	lock := e.acquire(order.ID)
	stored := Clone(order)
	err := e.backend.PersistOrderCreate(ctx, stored)
	e.release(order.ID, lock)
	if err != nil {
		return nil, persistenceError(err, "persist new order")
	}

	items := lineRefs(stored.Items)
	if err := e.bus.Publish(ctx, eventbus.OrderCreated{
		OrderID:     stored.ID,
		OrderNumber: stored.OrderNumber,
		BuyerID:     stored.BuyerID,
		Items:       items,
		Total:       stored.Total,
		OccurredAt:  stored.CreatedAt,
	}); err != nil && e.logg != nil {
		e.logg.Warn(e.logg.WithOrderID(ctx, stored.ID.String()), "order created subscribers failed: "+err.Error())
	}
	return Clone(stored), nil
}

// Transition validates and applies one status change.
func (e *Engine) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", input.Target))
	}
	input.Note = strings.TrimSpace(input.Note)
	if input.Target == enums.OrderStatusCancelled && input.Note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}
	role := input.ActorRole
	if role == "" {
		role = enums.ActorRoleSystem
	}

	logCtx := ctx
	if e.logg != nil {
		logCtx = e.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = e.logg.WithActorRole(logCtx, string(role))
	}

	lock := e.acquire(input.OrderID)
	current, base, err := e.load(ctx, input.OrderID)
	if err != nil {
		e.release(input.OrderID, lock)
		return nil, err
	}
	from := current.Status

	if err := e.guard(current, input, role); err != nil {
		e.release(input.OrderID, lock)
		e.metrics.ObserveTransition(string(from), string(input.Target), metrics.TransitionRejected)
		return nil, err
	}

	now := e.now().UTC()
	next := Clone(current)
	next.Status = input.Target
	next.UpdatedAt = now
	switch input.Target {
	case enums.OrderStatusDelivered:
		next.DeliveredAt = &now
	case enums.OrderStatusCancelled:
		reason := input.Note
		next.CancelReason = &reason
	}
	if input.Attach != nil {
		if err := input.Attach(next); err != nil {
			e.release(input.OrderID, lock)
			e.metrics.ObserveTransition(string(from), string(input.Target), metrics.TransitionRejected)
			return nil, err
		}
	}
	if err := CheckConsistency(next); err != nil {
		e.release(input.OrderID, lock)
		e.metrics.ObserveTransition(string(from), string(input.Target), metrics.TransitionRejected)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition left order inconsistent")
	}

	change := StatusChange{
		Order:     Clone(next),
		From:      base,
		To:        input.Target,
		Note:      input.Note,
		ActorID:   input.ActorID,
		ActorRole: role,
		At:        now,
	}
	persistErr := e.backend.PersistOrderStatus(ctx, change)
	if errors.Is(persistErr, ErrStaleStatus) {
		e.forget(input.OrderID)
		rejected := e.staleTransition(ctx, input.OrderID, input.Target)
		e.release(input.OrderID, lock)
		e.metrics.ObserveTransition(string(from), string(input.Target), metrics.TransitionStale)
		if e.logg != nil {
			e.logg.Warn(logCtx, "order status changed underneath transition, rejected")
		}
		return nil, rejected
	}
	if persistErr != nil {
		e.remember(next, base, &change, false)
	} else {
		e.forget(input.OrderID)
	}
	e.release(input.OrderID, lock)

	result := &TransitionResult{
		Order:   Clone(next),
		From:    from,
		Effects: BuildEffects(next),
	}
	result.SideEffectErrors = e.bus.Publish(ctx, e.changedEvent(next, from, input, role, now))
	if result.SideEffectErrors != nil && e.logg != nil {
		e.logg.Warn(logCtx, "transition side effects failed: "+result.SideEffectErrors.Error())
	}

	if persistErr != nil {
		e.metrics.ObserveTransition(string(from), string(input.Target), metrics.TransitionPersistFailed)
		if e.logg != nil {
			e.logg.Error(logCtx, "order status kept locally but not persisted", persistErr)
		}
		return result, persistenceError(persistErr, "persist order status")
	}

	e.metrics.ObserveTransition(string(from), string(input.Target), metrics.TransitionApplied)
	if e.logg != nil {
		e.logg.Info(e.logg.WithFields(logCtx, map[string]any{
			"from": from,
			"to":   input.Target,
		}), "order status changed")
	}
	return result, nil
}

// Cancel is Transition to cancelled with the reason carried as the note.
func (e *Engine) Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error) {
	return e.Transition(ctx, TransitionInput{
		OrderID:   input.OrderID,
		Target:    enums.OrderStatusCancelled,
		ActorID:   input.CancelledBy,
		ActorRole: input.Role,
		Note:      input.Reason,
	})
}

// Mutate applies a non-status change under the order lock. fn receives a
// copy; changing its status is rejected.
func (e *Engine) Mutate(ctx context.Context, orderID uuid.UUID, fn func(order *models.Order) error) (*models.Order, error) {
	if fn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mutation required")
	}
	lock := e.acquire(orderID)
	defer e.release(orderID, lock)

	current, base, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next := Clone(current)
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.Status != current.Status {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status may only change through a transition")
	}
	if err := CheckConsistency(next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mutation left order inconsistent")
	}
	next.UpdatedAt = e.now().UTC()

	if base != next.Status {
		// the status change itself is still unsynced; the update rides along
		e.remember(next, base, nil, true)
		return Clone(next), pkgerrors.New(pkgerrors.CodePersistenceUnavailable, "order has unsynced changes")
	}
	if err := e.backend.PersistOrderUpdate(ctx, Clone(next)); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			e.forget(orderID)
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while updating, reload and retry")
		}
		e.remember(next, base, nil, true)
		return Clone(next), persistenceError(err, "persist order update")
	}
	e.forget(orderID)
	return Clone(next), nil
}

// Get returns a copy of the order by id.
func (e *Engine) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	lock := e.acquire(orderID)
	defer e.release(orderID, lock)
	order, _, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return Clone(order), nil
}

// Detail resolves an order id or order number. With buyerID set, orders of
// other buyers are reported as not found.
func (e *Engine) Detail(ctx context.Context, ref string, buyerID *uuid.UUID) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	var order *models.Order
	if id, ok := e.unsyncedRef(ref); ok {
		loaded, err := e.Get(ctx, id)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		order = loaded
	} else {
		fetched, err := e.backend.FetchOrderDetail(ctx, ref)
		if err != nil {
			return nil, persistenceError(err, "fetch order detail")
		}
		order = fetched
	}
	if order == nil || (buyerID != nil && order.BuyerID != *buyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return Clone(order), nil
}

// ListBuyerOrders merges the backend list with the unsynced set, newest
// first. Unsynced copies win while the backend still holds their base status.
func (e *Engine) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	fetched, err := e.backend.FetchBuyerOrders(ctx, buyerID)
	if err != nil {
		return nil, persistenceError(err, "fetch buyer orders")
	}
	byID := make(map[uuid.UUID]*models.Order, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	e.mu.Lock()
	for id, pending := range e.unsynced {
		if pending.order.BuyerID != buyerID {
			continue
		}
		if stored, ok := byID[id]; ok && stored.Status != pending.base {
			continue
		}
		byID[id] = pending.order
	}
	out := make([]models.Order, 0, len(byID))
	for _, order := range byID {
		out = append(out, *Clone(order))
	}
	e.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// StaleOrders lists orders sitting in status since before cutoff.
func (e *Engine) StaleOrders(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error) {
	orders, err := e.backend.FetchOrdersByStatus(ctx, status, cutoff, limit)
	if err != nil {
		return nil, persistenceError(err, "fetch orders by status")
	}
	return orders, nil
}

// ReturnEligible applies the configured window.
func (e *Engine) ReturnEligible(order *models.Order) bool {
	return ReturnEligibleWithin(order, e.now(), e.windowDays)
}

func (e *Engine) guard(order *models.Order, input TransitionInput, role enums.ActorRole) error {
	from := order.Status
	if !CanTransition(from, input.Target) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", from, input.Target)).
			WithDetails(map[string]any{"from": from, "to": input.Target, "allowed": NextStatuses(from)})
	}
	if err := authorize(order, input.ActorID, role); err != nil {
		return err
	}
	if !roleMayTarget(role, from, input.Target) {
		return pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("%s may not move order to %s", role, input.Target))
	}
	switch input.Target {
	case enums.OrderStatusReturned:
		if !e.ReturnEligible(order) {
			return pkgerrors.New(pkgerrors.CodeReturnWindowClosed,
				fmt.Sprintf("returns close %d days after delivery", e.windowDays)).
				WithDetails(map[string]any{"order_id": order.ID.String(), "window_days": e.windowDays})
		}
	case enums.OrderStatusReviewed:
		if !AllItemsReviewed(order) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "every item must be reviewed first").
				WithDetails(map[string]any{"from": from, "to": input.Target})
		}
	}
	return nil
}

// authorize checks that buyers and sellers only act on their own orders.
func authorize(order *models.Order, actorID *uuid.UUID, role enums.ActorRole) error {
	switch role {
	case enums.ActorRoleBuyer:
		if actorID == nil || *actorID != order.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
	case enums.ActorRoleSeller:
		if actorID == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "seller identity missing")
		}
		for _, item := range order.Items {
			if item.SellerID == *actorID {
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from seller")
	}
	return nil
}

// load reads the order from the backend. It must run under the order lock.
// The second result is the status the backend holds, which is what the next
// write has to compare against. An unsynced local change is replayed when the
// backend still holds its base status and dropped when the backend moved on.
func (e *Engine) load(ctx context.Context, orderID uuid.UUID) (*models.Order, enums.OrderStatus, error) {
	e.mu.Lock()
	pending, ok := e.unsynced[orderID]
	e.mu.Unlock()

	fetched, err := e.backend.FetchOrderDetail(ctx, orderID.String())
	if err != nil {
		if ok {
			return pending.order, pending.base, nil
		}
		return nil, "", persistenceError(err, "load order")
	}
	if fetched == nil {
		e.forget(orderID)
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !ok {
		return fetched, fetched.Status, nil
	}

	if fetched.Status != pending.base {
		e.forget(orderID)
		if e.logg != nil {
			e.logg.Warn(e.logg.WithFields(e.logg.WithOrderID(ctx, orderID.String()), map[string]any{
				"stored": fetched.Status,
				"local":  pending.order.Status,
			}), "unsynced order change superseded by stored status, dropped")
		}
		return fetched, fetched.Status, nil
	}
	if err := e.replay(ctx, pending); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			e.forget(orderID)
			return e.load(ctx, orderID)
		}
		return pending.order, pending.base, nil
	}
	e.forget(orderID)
	return pending.order, pending.order.Status, nil
}

// replay writes an unsynced change as one status change from its base,
// followed by the non-status fields when those changed too.
func (e *Engine) replay(ctx context.Context, pending *unsyncedOrder) error {
	order := Clone(pending.order)
	if order.Status != pending.base {
		change := pending.change
		change.Order = Clone(order)
		change.From = pending.base
		change.To = order.Status
		if err := e.backend.PersistOrderStatus(ctx, change); err != nil {
			return err
		}
	}
	if pending.updated {
		return e.backend.PersistOrderUpdate(ctx, order)
	}
	return nil
}

func (e *Engine) staleTransition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) error {
	fresh, _, err := e.load(ctx, orderID)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("order is now %s, cannot move it to %s", fresh.Status, target)).
		WithDetails(map[string]any{"from": fresh.Status, "to": target, "allowed": NextStatuses(fresh.Status)})
}

// remember records a change the backend has not accepted. An order already
// unsynced keeps its original base. When the set is full the least recently
// updated entry is dropped.
func (e *Engine) remember(order *models.Order, base enums.OrderStatus, change *StatusChange, updated bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.unsynced[order.ID]
	if !ok {
		if len(e.unsynced) >= e.maxUnsynced {
			e.evictOldestLocked()
		}
		entry = &unsyncedOrder{base: base}
		e.unsynced[order.ID] = entry
	}
	entry.order = Clone(order)
	entry.updated = entry.updated || updated
	if change != nil {
		entry.change = *change
	}
}

func (e *Engine) evictOldestLocked() {
	var (
		oldest uuid.UUID
		at     time.Time
		found  bool
	)
	for id, entry := range e.unsynced {
		if !found || entry.order.UpdatedAt.Before(at) {
			oldest, at, found = id, entry.order.UpdatedAt, true
		}
	}
	if found {
		delete(e.unsynced, oldest)
		if e.logg != nil {
			e.logg.Warn(e.logg.WithOrderID(context.Background(), oldest.String()), "unsynced set full, oldest local change dropped")
		}
	}
}

func (e *Engine) forget(orderID uuid.UUID) {
	e.mu.Lock()
	delete(e.unsynced, orderID)
	e.mu.Unlock()
}

// Unsynced reports how many orders hold local changes the backend has not
// accepted.
func (e *Engine) Unsynced() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.unsynced)
}

func (e *Engine) unsyncedRef(ref string) (uuid.UUID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, err := uuid.Parse(ref); err == nil {
		_, ok := e.unsynced[id]
		return id, ok
	}
	for id, entry := range e.unsynced {
		if entry.order.OrderNumber == ref {
			return id, true
		}
	}
	return uuid.Nil, false
}

// acquire locks orderID for this engine. Locks are reference counted and
// dropped once no caller holds or waits on them.
func (e *Engine) acquire(orderID uuid.UUID) *orderLock {
	e.mu.Lock()
	lock, ok := e.locks[orderID]
	if !ok {
		lock = &orderLock{}
		e.locks[orderID] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (e *Engine) release(orderID uuid.UUID, lock *orderLock) {
	lock.mu.Unlock()
	e.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.locks, orderID)
	}
	e.mu.Unlock()
}

// heldLocks reports how many per-order locks are live.
func (e *Engine) heldLocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.locks)
}

func (e *Engine) changedEvent(order *models.Order, from enums.OrderStatus, input TransitionInput, role enums.ActorRole, at time.Time) eventbus.OrderStatusChanged {
	return eventbus.OrderStatusChanged{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		From:        from,
		To:          order.Status,
		Note:        input.Note,
		ActorID:     input.ActorID,
		ActorRole:   role,
		Items:       lineRefs(order.Items),
		Total:       order.Total,
		OccurredAt:  at,
	}
}

func lineRefs(items []models.OrderLineItem) []eventbus.LineItemRef {
	out := make([]eventbus.LineItemRef, 0, len(items))
	for _, item := range items {
		out = append(out, eventbus.LineItemRef{
			LineItemID: item.ID,
			ProductID:  item.ProductID,
			SellerID:   item.SellerID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return out
}

// persistenceError keeps typed errors and marks everything else as the
// store being unavailable.
func persistenceError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistenceUnavailable, err, msg)
}
