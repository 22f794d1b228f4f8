package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
)

// LineItemsFromCart snapshots cart lines onto a new order, keeping cart order.
func LineItemsFromCart(orderID uuid.UUID, items []models.CartItem) []models.OrderLineItem {
	lines := make([]models.OrderLineItem, 0, len(items))
	for i, item := range items {
		lines = append(lines, models.OrderLineItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			Position:  i,
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Name:      item.Name,
			Variant:   item.Variant,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return lines
}

// OrderTotal is the sum of price times quantity over lines.
func OrderTotal(lines []models.OrderLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// ProductQuantity is the total quantity of one product across lines.
type ProductQuantity struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
}

// QuantitiesByProduct folds lines of the same product (different variants
// included) into one entry, in first-seen order.
func QuantitiesByProduct(lines []models.OrderLineItem) []ProductQuantity {
	index := map[uuid.UUID]int{}
	out := []ProductQuantity{}
	for _, line := range lines {
		i, ok := index[line.ProductID]
		if !ok {
			index[line.ProductID] = len(out)
			out = append(out, ProductQuantity{ProductID: line.ProductID, Name: line.Name, Quantity: line.Quantity})
			continue
		}
		out[i].Quantity += line.Quantity
	}
	return out
}
