package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

// Service manages the buyer's pre-order working set.
type Service interface {
	Items(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, buyerID, itemID uuid.UUID, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

// AddItemInput describes a product line entering the cart.
type AddItemInput struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	SellerID  uuid.UUID       `json:"seller_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Variant   string          `json:"variant"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
}

type service struct {
	repo Repository
	now  func() time.Time

	mu sync.Mutex
}

// NewService builds a cart service over repo.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Items returns copies of the buyer's lines in insertion order.
func (s *service) Items(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	items, err := s.repo.ListItems(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	out := make([]models.CartItem, len(items))
	copy(out, items)
	return out, nil
}

// AddItem merges into an existing line with the same product and variant.
func (s *service) AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*models.CartItem, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if input.ProductID == uuid.Nil || input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and seller id are required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if input.UnitPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.ListItems(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	now := s.now().UTC()
	variant := strings.TrimSpace(input.Variant)
	for _, existing := range items {
		if existing.ProductID == input.ProductID && existing.Variant == variant {
			existing.Quantity += input.Quantity
			existing.UnitPrice = input.UnitPrice
			existing.UpdatedAt = now
			if err := s.repo.SaveItem(ctx, &existing); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
			return &existing, nil
		}
	}

	item := &models.CartItem{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		ProductID: input.ProductID,
		SellerID:  input.SellerID,
		Name:      strings.TrimSpace(input.Name),
		Variant:   variant,
		UnitPrice: input.UnitPrice,
		Quantity:  input.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return item, nil
}

func (s *service) UpdateQuantity(ctx context.Context, buyerID, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": quantity})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.ListItems(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	for _, existing := range items {
		if existing.ID != itemID {
			continue
		}
		existing.Quantity = quantity
		existing.UpdatedAt = s.now().UTC()
		if err := s.repo.SaveItem(ctx, &existing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		return &existing, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
}

func (s *service) RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.repo.DeleteItem(ctx, buyerID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Clear(ctx, buyerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// Total sums price times quantity over items.
func Total(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
