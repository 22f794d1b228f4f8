package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// PaymentMethod describes how the buyer chose to pay. Details carries a
// display label (masked card, wallet handle) and is never used for charging.
type PaymentMethod struct {
	Type    enums.PaymentMethodType `json:"type" validate:"required"`
	Details string                  `json:"details,omitempty"`
}

// Value marshals PaymentMethod into JSON.
func (p PaymentMethod) Value() (driver.Value, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("payment method: marshal %w", err)
	}
	return string(payload), nil
}

// Scan decodes a JSON document.
func (p *PaymentMethod) Scan(value interface{}) error {
	return scanJSON(value, p, "payment method")
}
