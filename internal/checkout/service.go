package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-orders/internal/checkout/helpers"
	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/progression"
	"github.com/angelmondragon/marketplace-orders/internal/projections"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type cartStore interface {
	Items(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type orderEngine interface {
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type stockLedger interface {
	CheckAvailability(ctx context.Context, requests []ledger.StockRequest) error
	Deduct(ctx context.Context, input ledger.DeductInput) (*ledger.Result, error)
}

type sellerProjector interface {
	Materialize(ctx context.Context, order *models.Order) ([]models.SellerOrder, error)
}

type sellerNotifier interface {
	NotifyPartyNewOrder(ctx context.Context, sellerID, orderID uuid.UUID, orderNumber, buyerName string, total decimal.Decimal) error
}

type progressionStarter interface {
	Start(orderID uuid.UUID) []progression.Handle
}

// CheckoutInput converts the buyer's cart into an order. OrderID is optional;
// passing the id of an earlier attempt replays its side effects instead of
// creating a second order.
type CheckoutInput struct {
	OrderID         uuid.UUID           `json:"order_id"`
	BuyerID         uuid.UUID           `json:"-" validate:"required"`
	BuyerName       string              `json:"buyer_name" validate:"required,max=200"`
	ShippingAddress types.Address       `json:"shipping_address"`
	PaymentMethod   types.PaymentMethod `json:"payment_method"`
}

// Result is the placed order plus everything that went wrong after it was
// safely persisted. SideEffectErrors never blocks the buyer.
type Result struct {
	Order            *models.Order
	SellerOrders     []models.SellerOrder
	Replayed         bool
	SideEffectErrors error
}

type Params struct {
	Cart        cartStore
	Engine      orderEngine
	Ledger      stockLedger
	Projections sellerProjector
	Notifier    sellerNotifier
	Progression progressionStarter
	Metrics     *metrics.OrderMetrics
	Logger      *logger.Logger

	CODDeliveryDays      int
	StandardDeliveryDays int
}

type Service struct {
	cart        cartStore
	engine      orderEngine
	ledger      stockLedger
	projections sellerProjector
	notifier    sellerNotifier
	progression progressionStarter
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	validate    *validator.Validate
	now         func() time.Time

	codDays      int
	standardDays int
}

func NewService(params Params) (*Service, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("order engine required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Projections == nil {
		return nil, fmt.Errorf("seller projections required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	codDays, standardDays := params.CODDeliveryDays, params.StandardDeliveryDays
	if codDays <= 0 {
		codDays = 5
	}
	if standardDays <= 0 {
		standardDays = 3
	}
	return &Service{
		cart:         params.Cart,
		engine:       params.Engine,
		ledger:       params.Ledger,
		projections:  params.Projections,
		notifier:     params.Notifier,
		progression:  params.Progression,
		metrics:      params.Metrics,
		logg:         params.Logger,
		validate:     validator.New(),
		now:          time.Now,
		codDays:      codDays,
		standardDays: standardDays,
	}, nil
}

func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (*Result, error) {
	input.BuyerName = strings.TrimSpace(input.BuyerName)
	method := string(input.PaymentMethod.Type)

	if input.OrderID != uuid.Nil {
		existing, err := s.engine.Get(ctx, input.OrderID)
		switch {
		case err == nil:
			if existing.BuyerID != input.BuyerID {
				s.metrics.ObserveCheckout(method, metrics.CheckoutRejected)
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "order id already in use")
			}
			result := s.runSideEffects(ctx, existing, false)
			result.Replayed = true
			s.metrics.ObserveCheckout(string(existing.PaymentMethod.Type), metrics.CheckoutReplayed)
			return result, nil
		case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			s.metrics.ObserveCheckout(method, metrics.CheckoutFailed)
			return nil, err
		}
	}

	order, err := s.buildOrder(ctx, input)
	if err != nil {
		s.metrics.ObserveCheckout(method, metrics.CheckoutRejected)
		return nil, err
	}
	created, err := s.engine.Create(ctx, order)
	if err != nil {
		s.metrics.ObserveCheckout(method, metrics.CheckoutFailed)
		return nil, err
	}
	s.metrics.ObserveCheckout(method, metrics.CheckoutPlaced)

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, created.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"order_number":   created.OrderNumber,
			"payment_method": method,
			"total":          created.Total.StringFixed(2),
		})
		s.logg.Info(logCtx, "order placed")
	}
	return s.runSideEffects(ctx, created, true), nil
}

func (s *Service) buildOrder(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout request")
	}
	if err := helpers.ValidateShipping(input.ShippingAddress); err != nil {
		return nil, err
	}
	if err := helpers.ValidatePayment(input.PaymentMethod); err != nil {
		return nil, err
	}

	items, err := s.cart.Items(ctx, input.BuyerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	orderID := input.OrderID
	if orderID == uuid.Nil {
		orderID = uuid.New()
	}
	lines := helpers.LineItemsFromCart(orderID, items)

	requests := []ledger.StockRequest{}
	for _, q := range helpers.QuantitiesByProduct(lines) {
		requests = append(requests, ledger.StockRequest{ProductID: q.ProductID, Name: q.Name, Quantity: q.Quantity})
	}
	if err := s.ledger.CheckAvailability(ctx, requests); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	number, err := helpers.OrderNumber(now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}
	tracking, err := helpers.TrackingNumber()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate tracking number")
	}
	for i := range lines {
		lines[i].CreatedAt = now
	}
	return &models.Order{
		ID:                  orderID,
		OrderNumber:         number,
		BuyerID:             input.BuyerID,
		BuyerName:           input.BuyerName,
		Status:              enums.OrderStatusPending,
		PaymentMethod:       input.PaymentMethod,
		ShippingAddress:     input.ShippingAddress,
		IsPaid:              input.PaymentMethod.Type.IsPaidAtCreation(),
		Total:               helpers.OrderTotal(lines),
		EstimatedDeliveryAt: helpers.EstimatedDelivery(now, input.PaymentMethod.Type, s.codDays, s.standardDays),
		TrackingNumber:      &tracking,
		CreatedAt:           now,
		UpdatedAt:           now,
		Items:               lines,
	}, nil
}

// runSideEffects attempts every post-placement step. Seller groups run
// concurrently; inside a group stock is deducted before the seller hears
// about the order. On replay the cart is left alone and a group whose
// deductions were all already recorded is not notified again.
func (s *Service) runSideEffects(ctx context.Context, order *models.Order, fresh bool) *Result {
	result := &Result{Order: order}
	var errs error

	// the cart may already hold the buyer's next order by the time a
	// placement is replayed
	if fresh {
		if err := s.cart.Clear(ctx, order.BuyerID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("clear cart: %w", err))
		}
	}

	sellerOrders, err := s.projections.Materialize(ctx, order)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("materialize seller orders: %w", err))
	}
	result.SellerOrders = sellerOrders

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		group error
	)
	for _, g := range projections.GroupBySeller(order.Items) {
		wg.Add(1)
		go func(g projections.SellerGroup) {
			defer wg.Done()
			if err := s.fulfilGroup(ctx, order, g); err != nil {
				mu.Lock()
				group = multierr.Append(group, err)
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()
	errs = multierr.Append(errs, group)

	if fresh && s.progression != nil {
		s.progression.Start(order.ID)
	}

	if errs != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "checkout side effects incomplete: "+errs.Error())
	}
	result.SideEffectErrors = errs
	return result
}

func (s *Service) fulfilGroup(ctx context.Context, order *models.Order, g projections.SellerGroup) error {
	var errs error
	applied := false
	for _, q := range helpers.QuantitiesByProduct(g.Items) {
		res, err := s.ledger.Deduct(ctx, ledger.DeductInput{ProductID: q.ProductID, Quantity: q.Quantity, OrderID: order.ID})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deduct %s for seller %s: %w", q.ProductID, g.SellerID, err))
			continue
		}
		if !res.Duplicate {
			applied = true
		}
	}
	if !applied && errs == nil {
		return nil
	}
	if err := s.notifier.NotifyPartyNewOrder(ctx, g.SellerID, order.ID, order.OrderNumber, order.BuyerName, g.Total); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("notify seller %s: %w", g.SellerID, err))
	}
	return errs
}
