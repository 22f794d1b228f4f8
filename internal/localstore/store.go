// Package localstore keeps orders and cart lines in snapshot documents so the
// service keeps working when the relational store is unreachable.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/internal/cart"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/snapshot"
)

const (
	docItems  = "items"
	docOrders = "orders"
)

var (
	_ orders.Backend  = (*Store)(nil)
	_ cart.Repository = (*Store)(nil)
)

// Store reads and rewrites whole documents under one lock. Notifications are
// never written here.
type Store struct {
	snapshots snapshot.Store
	name      string

	mu sync.Mutex
}

// New binds a Store to the snapshot documents named name.
func New(snapshots snapshot.Store, name string) (*Store, error) {
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if name == "" {
		return nil, fmt.Errorf("snapshot store name required")
	}
	return &Store{snapshots: snapshots, name: name}, nil
}

func (s *Store) PersistOrderCreate(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadOrders(ctx)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing.ID == order.ID {
			return fmt.Errorf("order %s already exists", order.ID)
		}
	}
	list = append(list, *orders.Clone(order))
	return s.saveOrders(ctx, list)
}

func (s *Store) PersistOrderStatus(ctx context.Context, change orders.StatusChange) error {
	if change.Order == nil {
		return fmt.Errorf("order required")
	}
	return s.replaceOrder(ctx, change.Order, change.From)
}

func (s *Store) PersistOrderUpdate(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	return s.replaceOrder(ctx, order, order.Status)
}

func (s *Store) FetchBuyerOrders(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Order{}
	for _, order := range list {
		if order.BuyerID == buyerID {
			out = append(out, order)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) FetchOrderDetail(ctx context.Context, ref string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID.String() == ref || list[i].OrderNumber == ref {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (s *Store) FetchOrdersByStatus(ctx context.Context, status enums.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Order{}
	for _, order := range list {
		if order.Status == status && order.UpdatedAt.Before(updatedBefore) {
			out = append(out, order)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, _, err := s.snapshots.Load(ctx, s.name, docOrders)
	return err
}

func (s *Store) ListItems(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.loadItems(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.CartItem{}
	for _, item := range items {
		if item.BuyerID == buyerID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) SaveItem(ctx context.Context, item *models.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.loadItems(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = *item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, *item)
	}
	return s.saveItems(ctx, items)
}

func (s *Store) DeleteItem(ctx context.Context, buyerID, itemID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.loadItems(ctx)
	if err != nil {
		return false, err
	}
	kept := items[:0]
	removed := false
	for _, item := range items {
		if item.ID == itemID && item.BuyerID == buyerID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return false, nil
	}
	return true, s.saveItems(ctx, kept)
}

func (s *Store) Clear(ctx context.Context, buyerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.loadItems(ctx)
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, item := range items {
		if item.BuyerID != buyerID {
			kept = append(kept, item)
		}
	}
	return s.saveItems(ctx, kept)
}

// replaceOrder swaps the stored record while it still holds expected.
func (s *Store) replaceOrder(ctx context.Context, order *models.Order, expected enums.OrderStatus) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadOrders(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == order.ID {
			if list[i].Status != expected {
				return orders.ErrStaleStatus
			}
			list[i] = *orders.Clone(order)
			return s.saveOrders(ctx, list)
		}
	}
	return fmt.Errorf("order %s not found", order.ID)
}

func (s *Store) loadOrders(ctx context.Context) ([]models.Order, error) {
	var list []models.Order
	if err := s.load(ctx, docOrders, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) saveOrders(ctx context.Context, list []models.Order) error {
	return s.save(ctx, docOrders, list)
}

func (s *Store) loadItems(ctx context.Context) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := s.load(ctx, docItems, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) saveItems(ctx context.Context, items []models.CartItem) error {
	return s.save(ctx, docItems, items)
}

func (s *Store) load(ctx context.Context, doc string, dest any) error {
	payload, ok, err := s.snapshots.Load(ctx, s.name, doc)
	if err != nil {
		return err
	}
	if !ok || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode %s snapshot: %w", doc, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, doc string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", doc, err)
	}
	return s.snapshots.Save(ctx, s.name, doc, payload)
}
