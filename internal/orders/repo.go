package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type repository struct {
	db     *gorm.DB
	tx     txRunner
	outbox outboxPublisher
}

// NewRepository builds the gorm backend. Every write commits together with
// its outbox event.
func NewRepository(db *gorm.DB, tx txRunner, outbox outboxPublisher) (Backend, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &repository{db: db, tx: tx, outbox: outbox}, nil
}

func (r *repository) PersistOrderCreate(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Omit("ReturnRequest", "Reviews").Create(order).Error; err != nil {
			return err
		}
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: &order.BuyerID, Role: string(enums.ActorRoleBuyer)},
			OccurredAt:    order.CreatedAt,
			Data: payloads.OrderCreatedEvent{
				OrderID:           order.ID,
				OrderNumber:       order.OrderNumber,
				BuyerID:           order.BuyerID,
				PaymentMethodType: order.PaymentMethod.Type,
				IsPaid:            order.IsPaid,
				Total:             order.Total,
				Lines:             wireLines(order.Items),
				CreatedAt:         order.CreatedAt,
			},
		})
	})
}

func (r *repository) PersistOrderStatus(ctx context.Context, change StatusChange) error {
	order := change.Order
	if order == nil {
		return fmt.Errorf("order required")
	}
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, change.From).
			Updates(map[string]any{
				"status":        change.To,
				"is_paid":       order.IsPaid,
				"delivered_at":  order.DeliveredAt,
				"cancel_reason": order.CancelReason,
				"updated_at":    at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		if change.To == enums.OrderStatusReturned && order.ReturnRequest != nil {
			if err := tx.WithContext(ctx).Create(order.ReturnRequest).Error; err != nil {
				return err
			}
		}
		if change.To == enums.OrderStatusReviewed && len(order.Reviews) > 0 {
			// rows usually exist already from per-item submission
			if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&order.Reviews).Error; err != nil {
				return err
			}
		}

		history := models.OrderStatusHistory{
			ID:         uuid.New(),
			OrderID:    order.ID,
			FromStatus: change.From,
			ToStatus:   change.To,
			ActorID:    change.ActorID,
			ActorRole:  change.ActorRole,
			CreatedAt:  at,
		}
		if change.Note != "" {
			note := change.Note
			history.Note = &note
		}
		if err := tx.WithContext(ctx).Create(&history).Error; err != nil {
			return err
		}

		actor := &outbox.ActorRef{UserID: change.ActorID, Role: string(change.ActorRole)}
		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    at,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				From:        change.From,
				To:          change.To,
				Note:        change.Note,
				ChangedAt:   at,
			},
		}); err != nil {
			return err
		}

		if change.To == enums.OrderStatusReturned && order.ReturnRequest != nil {
			rr := order.ReturnRequest
			return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReturnRequested,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor,
				OccurredAt:    at,
				Data: payloads.ReturnRequestedEvent{
					OrderID:      order.ID,
					BuyerID:      rr.BuyerID,
					Reason:       rr.Reason,
					Solution:     rr.Solution,
					RefundAmount: rr.RefundAmount,
				},
			})
		}
		return nil
	})
}

func (r *repository) PersistOrderUpdate(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Update("updated_at", order.UpdatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}
		for _, item := range order.Items {
			if err := tx.WithContext(ctx).Model(&models.OrderLineItem{}).
				Where("id = ? AND order_id = ?", item.ID, order.ID).
				Update("review_submitted", item.ReviewSubmitted).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) FetchBuyerOrders(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	if err := r.withRelations(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	if err := r.attachReviews(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FetchOrderDetail(ctx context.Context, ref string) (*models.Order, error) {
	query := r.withRelations(ctx)
	if id, err := uuid.Parse(ref); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("order_number = ?", ref)
	}
	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	list := []models.Order{order}
	if err := r.attachReviews(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *repository) FetchOrdersByStatus(ctx context.Context, status enums.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error) {
	query := r.withRelations(ctx).
		Where("status = ? AND updated_at < ?", status, updatedBefore).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *repository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("ReturnRequest")
}

// attachReviews loads review rows for reviewed orders only. Delivered orders
// may hold rows for a partial submission; those stay off the record until
// the order itself is reviewed.
func (r *repository) attachReviews(ctx context.Context, orders []models.Order) error {
	index := map[uuid.UUID]int{}
	ids := []uuid.UUID{}
	for i := range orders {
		if orders[i].Status == enums.OrderStatusReviewed {
			index[orders[i].ID] = i
			ids = append(ids, orders[i].ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var reviews []models.Review
	if err := r.db.WithContext(ctx).
		Where("order_id IN ?", ids).
		Order("created_at ASC").
		Find(&reviews).Error; err != nil {
		return err
	}
	for _, review := range reviews {
		i := index[review.OrderID]
		orders[i].Reviews = append(orders[i].Reviews, review)
	}
	return nil
}

func wireLines(items []models.OrderLineItem) []payloads.OrderLine {
	out := make([]payloads.OrderLine, 0, len(items))
	for _, item := range items {
		out = append(out, payloads.OrderLine{
			LineItemID: item.ID,
			ProductID:  item.ProductID,
			SellerID:   item.SellerID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return out
}
