package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records stock movements. Every stock change goes through a ledger
// entry so the entries always explain the current level.
type Service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// DeductInput removes sold stock for one order line.
type DeductInput struct {
	ProductID uuid.UUID
	Quantity  int
	OrderID   uuid.UUID
}

// RestockInput returns stock for a cancelled or returned order line.
type RestockInput struct {
	ProductID uuid.UUID
	Quantity  int
	OrderID   uuid.UUID
	Reason    enums.LedgerReason
}

// AdjustInput is an operator correction with no order reference.
type AdjustInput struct {
	ProductID uuid.UUID
	Delta     int
	Note      string
}

// StockRequest is one product/quantity pair checked before checkout.
type StockRequest struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
}

// Result reports the entry backing a movement. Duplicate is set when an
// entry for the same (product, order, reason) already existed and nothing
// was written. NothingSold is set when a restock found no online_sale entry
// for its order; Entry is nil then.
type Result struct {
	Entry       *models.InventoryLedgerEntry
	Duplicate   bool
	NothingSold bool
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

// Deduct writes the online_sale entry for (product, order). Calling it again
// for the same pair returns the existing entry.
func (s *Service) Deduct(ctx context.Context, input DeductInput) (*Result, error) {
	if input.ProductID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and order id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.movement(ctx, input.ProductID, input.OrderID, -input.Quantity, enums.LedgerReasonOnlineSale, nil)
}

// Restock writes a cancel_restock or return_restock entry, once per
// (product, order, reason). It only gives back what the order's online_sale
// entry took, so an order whose deduction failed restocks nothing.
func (s *Service) Restock(ctx context.Context, input RestockInput) (*Result, error) {
	if input.ProductID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and order id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !isRestock(input.Reason) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason %q is not a restock reason", input.Reason))
	}
	return s.movement(ctx, input.ProductID, input.OrderID, input.Quantity, input.Reason, nil)
}

// Adjust applies a manual correction. The resulting stock may not go negative.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (*models.InventoryLedgerEntry, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	var note *string
	if input.Note != "" {
		note = &input.Note
	}
	res, err := s.movement(ctx, input.ProductID, uuid.Nil, input.Delta, enums.LedgerReasonManualAdjustment, note)
	if err != nil {
		return nil, err
	}
	return res.Entry, nil
}

// SetStock brings a product to qty with a single manual adjustment. Used for
// seeding and stock takes.
func (s *Service) SetStock(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	current, err := s.Available(ctx, productID)
	if err != nil {
		return err
	}
	if current == qty {
		return nil
	}
	_, err = s.Adjust(ctx, AdjustInput{ProductID: productID, Delta: qty - current, Note: "stock set"})
	return err
}

// Available returns the ledger-tracked stock, zero for unknown products.
func (s *Service) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	item, err := s.repo.GetStock(ctx, productID, false)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock")
	}
	if item == nil {
		return 0, nil
	}
	return item.AvailableQty, nil
}

// CheckAvailability fails with InsufficientStock naming the first product
// whose summed requested quantity exceeds available stock.
func (s *Service) CheckAvailability(ctx context.Context, requests []StockRequest) error {
	totals := make(map[uuid.UUID]int, len(requests))
	order := make([]StockRequest, 0, len(requests))
	for _, req := range requests {
		if _, seen := totals[req.ProductID]; !seen {
			order = append(order, req)
		}
		totals[req.ProductID] += req.Quantity
	}
	for _, req := range order {
		available, err := s.Available(ctx, req.ProductID)
		if err != nil {
			return err
		}
		requested := totals[req.ProductID]
		if requested > available {
			return insufficientStock(req.ProductID, req.Name, requested, available)
		}
	}
	return nil
}

func (s *Service) Entries(ctx context.Context, productID uuid.UUID) ([]models.InventoryLedgerEntry, error) {
	return s.repo.ListByProduct(ctx, productID)
}

func (s *Service) EntriesByReference(ctx context.Context, orderID uuid.UUID) ([]models.InventoryLedgerEntry, error) {
	return s.repo.ListByReference(ctx, orderID)
}

// HandleEvent restocks every line of an order that was cancelled or returned.
func (s *Service) HandleEvent(ctx context.Context, event eventbus.Event) error {
	changed, ok := event.(eventbus.OrderStatusChanged)
	if !ok {
		return nil
	}
	var reason enums.LedgerReason
	switch changed.To {
	case enums.OrderStatusCancelled:
		reason = enums.LedgerReasonCancelRestock
	case enums.OrderStatusReturned:
		reason = enums.LedgerReasonReturnRestock
	default:
		return nil
	}

	var errs error
	for _, line := range sumByProduct(changed.Items) {
		if _, err := s.Restock(ctx, RestockInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			OrderID:   changed.OrderID,
			Reason:    reason,
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restock %s: %w", line.ProductID, err))
		}
	}
	return errs
}

// sumByProduct folds lines sharing a product (different variants) into one
// movement, since the ledger keeps a single entry per product and order.
func sumByProduct(items []eventbus.LineItemRef) []StockRequest {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]StockRequest, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, StockRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

var errDuplicateEntry = errors.New("ledger entry already recorded")

func (s *Service) movement(ctx context.Context, productID, orderID uuid.UUID, delta int, reason enums.LedgerReason, note *string) (*Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if orderID != uuid.Nil {
			existing, err := repo.FindEntry(ctx, productID, orderID, reason)
			if err != nil {
				return err
			}
			if existing != nil {
				result = Result{Entry: existing, Duplicate: true}
				return nil
			}
		}

		if isRestock(reason) {
			sale, err := repo.FindEntry(ctx, productID, orderID, enums.LedgerReasonOnlineSale)
			if err != nil {
				return err
			}
			if sale == nil {
				result = Result{NothingSold: true}
				return nil
			}
			if sold := -sale.Delta; delta > sold {
				delta = sold
			}
		}

		stock, err := repo.GetStock(ctx, productID, true)
		if err != nil {
			return err
		}
		if stock == nil {
			stock = &models.InventoryItem{ProductID: productID}
		}
		before := stock.AvailableQty
		after := before + delta
		if after < 0 {
			if reason == enums.LedgerReasonOnlineSale {
				return insufficientStock(productID, "", -delta, before)
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "adjustment would make stock negative").
				WithDetails(map[string]any{"product_id": productID.String(), "available": before, "delta": delta})
		}

		entry := &models.InventoryLedgerEntry{
			ID:          uuid.New(),
			ProductID:   productID,
			Delta:       delta,
			Reason:      reason,
			StockBefore: before,
			StockAfter:  after,
			Note:        note,
			CreatedAt:   s.now().UTC(),
		}
		if orderID != uuid.Nil {
			ref := orderID
			entry.ReferenceID = &ref
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return errDuplicateEntry
			}
			return err
		}
		stock.AvailableQty = after
		if err := repo.SaveStock(ctx, stock); err != nil {
			return err
		}
		result = Result{Entry: entry}
		return nil
	})

	if errors.Is(err, errDuplicateEntry) {
		// lost a race with a concurrent writer for the same reference
		existing, findErr := s.repo.FindEntry(ctx, productID, orderID, reason)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load existing ledger entry")
		}
		return &Result{Entry: existing, Duplicate: true}, nil
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger entry")
	}

	if result.NothingSold {
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
				"product_id": productID.String(),
				"reason":     reason,
			})
			s.logg.Warn(logCtx, "restock skipped, order has no recorded sale for product")
		}
		return &result, nil
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": productID.String(),
			"reason":     reason,
			"delta":      delta,
			"duplicate":  result.Duplicate,
		})
		if orderID != uuid.Nil {
			logCtx = s.logg.WithOrderID(logCtx, orderID.String())
		}
		s.logg.Info(logCtx, "inventory ledger movement")
	}
	return &result, nil
}

func isRestock(reason enums.LedgerReason) bool {
	return reason == enums.LedgerReasonCancelRestock || reason == enums.LedgerReasonReturnRestock
}

func insufficientStock(productID uuid.UUID, name string, requested, available int) *pkgerrors.Error {
	label := name
	if label == "" {
		label = productID.String()
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock,
		fmt.Sprintf("only %d of %s available, %d requested", available, label, requested)).
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"name":       name,
			"requested":  requested,
			"available":  available,
		})
}
