package enums

import "fmt"

// PaymentMethodType enumerates the checkout payment options.
type PaymentMethodType string

const (
	PaymentMethodTypeCard     PaymentMethodType = "card"
	PaymentMethodTypeEWalletA PaymentMethodType = "ewallet_a"
	PaymentMethodTypeEWalletB PaymentMethodType = "ewallet_b"
	PaymentMethodTypeCOD      PaymentMethodType = "cod"
)

var validPaymentMethodTypes = []PaymentMethodType{
	PaymentMethodTypeCard,
	PaymentMethodTypeEWalletA,
	PaymentMethodTypeEWalletB,
	PaymentMethodTypeCOD,
}

// String implements fmt.Stringer.
func (p PaymentMethodType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentMethodType) IsValid() bool {
	for _, candidate := range validPaymentMethodTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaidAtCreation is false only for cash on delivery.
func (p PaymentMethodType) IsPaidAtCreation() bool {
	return p != PaymentMethodTypeCOD
}

// ParsePaymentMethodType converts raw input into a PaymentMethodType.
func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	for _, candidate := range validPaymentMethodTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method type %q", value)
}
