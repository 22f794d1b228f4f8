package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// ErrStaleStatus is returned by a backend when the stored order no longer
// holds the status a write was computed from. Nothing is written.
var ErrStaleStatus = errors.New("stored order status changed")

// Backend is the durable store of record for orders. The gorm repository
// serves remote mode; internal/localstore serves the local fallback.
type Backend interface {
	PersistOrderCreate(ctx context.Context, order *models.Order) error
	// PersistOrderStatus applies change only while the stored status still
	// equals change.From, otherwise it returns ErrStaleStatus.
	PersistOrderStatus(ctx context.Context, change StatusChange) error
	// PersistOrderUpdate saves non-status changes such as review flags. The
	// stored status must equal order.Status, otherwise ErrStaleStatus.
	PersistOrderUpdate(ctx context.Context, order *models.Order) error
	FetchBuyerOrders(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	// FetchOrderDetail resolves ref as an order id or an order number and
	// returns nil when nothing matches.
	FetchOrderDetail(ctx context.Context, ref string) (*models.Order, error)
	FetchOrdersByStatus(ctx context.Context, status enums.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error)
	Ping(ctx context.Context) error
}

// StatusChange carries an applied transition to the backend. Order is the
// post-transition record, including any attached return request or reviews.
type StatusChange struct {
	Order     *models.Order
	From      enums.OrderStatus
	To        enums.OrderStatus
	Note      string
	ActorID   *uuid.UUID
	ActorRole enums.ActorRole
	At        time.Time
}
