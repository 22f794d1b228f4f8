package cartdto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AddItemRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	SellerID  uuid.UUID       `json:"seller_id" validate:"required"`
	Name      string          `json:"name" validate:"required,max=200"`
	Variant   string          `json:"variant" validate:"max=100"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"required,min=1,max=999"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=999"`
}

type CartItem struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Name      string    `json:"name"`
	Variant   string    `json:"variant,omitempty"`
	UnitPrice string    `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	LineTotal string    `json:"line_total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SellerGroup previews how checkout will split the cart.
type SellerGroup struct {
	SellerID  uuid.UUID `json:"seller_id"`
	ItemCount int       `json:"item_count"`
	Subtotal  string    `json:"subtotal"`
}

type Cart struct {
	Items        []CartItem    `json:"items"`
	SellerGroups []SellerGroup `json:"seller_groups"`
	ItemCount    int           `json:"item_count"`
	Total        string        `json:"total"`
}
