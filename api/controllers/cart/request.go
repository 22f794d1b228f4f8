package cart

import (
	"strings"

	cartdto "github.com/angelmondragon/marketplace-orders/api/controllers/cart/dto"
	"github.com/angelmondragon/marketplace-orders/api/validators"
	cartsvc "github.com/angelmondragon/marketplace-orders/internal/cart"
)

func toAddItemInput(payload cartdto.AddItemRequest) cartsvc.AddItemInput {
	return cartsvc.AddItemInput{
		ProductID: payload.ProductID,
		SellerID:  payload.SellerID,
		Name:      validators.SanitizeString(payload.Name, 200),
		Variant:   strings.TrimSpace(payload.Variant),
		UnitPrice: payload.UnitPrice,
		Quantity:  payload.Quantity,
	}
}
