package cart

import (
	"github.com/shopspring/decimal"

	cartdto "github.com/angelmondragon/marketplace-orders/api/controllers/cart/dto"
	cartsvc "github.com/angelmondragon/marketplace-orders/internal/cart"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
)

func newCartItem(item models.CartItem) cartdto.CartItem {
	return cartdto.CartItem{
		ID:        item.ID,
		ProductID: item.ProductID,
		SellerID:  item.SellerID,
		Name:      item.Name,
		Variant:   item.Variant,
		UnitPrice: item.UnitPrice.StringFixed(2),
		Quantity:  item.Quantity,
		LineTotal: item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

// newCart renders items with seller groups in first-seen order.
func newCart(items []models.CartItem) cartdto.Cart {
	out := cartdto.Cart{
		Items:        make([]cartdto.CartItem, 0, len(items)),
		SellerGroups: []cartdto.SellerGroup{},
		Total:        cartsvc.Total(items).StringFixed(2),
	}
	subtotals := map[int]decimal.Decimal{}
	index := map[string]int{}
	for _, item := range items {
		out.Items = append(out.Items, newCartItem(item))
		out.ItemCount += item.Quantity

		key := item.SellerID.String()
		i, ok := index[key]
		if !ok {
			i = len(out.SellerGroups)
			index[key] = i
			out.SellerGroups = append(out.SellerGroups, cartdto.SellerGroup{SellerID: item.SellerID})
			subtotals[i] = decimal.Zero
		}
		out.SellerGroups[i].ItemCount += item.Quantity
		subtotals[i] = subtotals[i].Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	for i := range out.SellerGroups {
		out.SellerGroups[i].Subtotal = subtotals[i].StringFixed(2)
	}
	return out
}
