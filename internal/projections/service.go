package projections

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SellerGroup is the slice of an order one seller fulfils.
type SellerGroup struct {
	SellerID uuid.UUID
	Items    []models.OrderLineItem
	Total    decimal.Decimal
}

// GroupBySeller splits items by seller in first-seen order.
func GroupBySeller(items []models.OrderLineItem) []SellerGroup {
	index := map[uuid.UUID]int{}
	groups := []SellerGroup{}
	for _, item := range items {
		i, ok := index[item.SellerID]
		if !ok {
			i = len(groups)
			index[item.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: item.SellerID, Total: decimal.Zero})
		}
		groups[i].Items = append(groups[i].Items, item)
		groups[i].Total = groups[i].Total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return groups
}

// Service keeps seller projections in step with the buyer order.
type Service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("projection repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

// Materialize writes one projection per seller group of order. Sellers that
// already have a projection for the order are skipped, so a retried
// checkout does not fan out twice.
func (s *Service) Materialize(ctx context.Context, order *models.Order) ([]models.SellerOrder, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	created := []models.SellerOrder{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		have := map[uuid.UUID]struct{}{}
		for _, row := range existing {
			have[row.SellerID] = struct{}{}
		}

		now := s.now().UTC()
		for _, group := range GroupBySeller(order.Items) {
			if _, ok := have[group.SellerID]; ok {
				continue
			}
			projection := buildProjection(order, group, now)
			if err := repo.Create(ctx, &projection); err != nil {
				return err
			}
			created = append(created, projection)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "materialize seller orders")
	}
	return created, nil
}

// Sync moves every projection of orderID to status. A missing projection is
// logged and tolerated; delivery settles payment on every projection, cash
// on delivery included.
func (s *Service) Sync(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	settle := status == enums.OrderStatusDelivered
	updated, err := s.repo.UpdateStatus(ctx, orderID, status, settle, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync seller orders")
	}
	if updated == 0 && s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithField(logCtx, "status", status)
		s.logg.Warn(logCtx, "no seller projection found for order")
	}
	return nil
}

func (s *Service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID) ([]models.SellerOrder, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	rows, err := s.repo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller orders")
	}
	return rows, nil
}

// HandleEvent syncs projections after every status change.
func (s *Service) HandleEvent(ctx context.Context, event eventbus.Event) error {
	changed, ok := event.(eventbus.OrderStatusChanged)
	if !ok {
		return nil
	}
	return s.Sync(ctx, changed.OrderID, changed.To)
}

func buildProjection(order *models.Order, group SellerGroup, now time.Time) models.SellerOrder {
	projectionID := uuid.New()
	items := make([]models.SellerOrderItem, 0, len(group.Items))
	for _, item := range group.Items {
		items = append(items, models.SellerOrderItem{
			ID:            uuid.New(),
			SellerOrderID: projectionID,
			LineItemID:    item.ID,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Variant:       item.Variant,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
		})
	}
	address := order.ShippingAddress
	if order.ShippingAddress.Line2 != nil {
		line2 := *order.ShippingAddress.Line2
		address.Line2 = &line2
	}
	return models.SellerOrder{
		ID:                projectionID,
		OrderID:           order.ID,
		SellerID:          group.SellerID,
		BuyerID:           order.BuyerID,
		BuyerName:         order.BuyerName,
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		PaymentMethodType: order.PaymentMethod.Type,
		PaymentSettled:    order.IsPaid,
		ShippingAddress:   address,
		Total:             group.Total,
		CreatedAt:         now,
		UpdatedAt:         now,
		Items:             items,
	}
}
