package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

const (
	orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	orderNumberSuffix   = 6
	trackingDigits      = 10
)

// ValidateShipping requires every field a courier needs.
func ValidateShipping(address types.Address) error {
	if err := address.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	return nil
}

func ValidatePayment(method types.PaymentMethod) error {
	if !method.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method.Type))
	}
	return nil
}

// EstimatedDelivery adds the configured lead time; cash on delivery needs an
// extra confirmation round-trip so it gets its own figure.
func EstimatedDelivery(created time.Time, method enums.PaymentMethodType, codDays, standardDays int) time.Time {
	if method == enums.PaymentMethodTypeCOD {
		return created.AddDate(0, 0, codDays)
	}
	return created.AddDate(0, 0, standardDays)
}

// OrderNumber renders ORD-YYYYMMDD-XXXXXX using the UTC date of at.
func OrderNumber(at time.Time) (string, error) {
	suffix, err := randomFrom(orderNumberAlphabet, orderNumberSuffix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), suffix), nil
}

// TrackingNumber renders TRK followed by ten digits.
func TrackingNumber() (string, error) {
	digits, err := randomFrom("0123456789", trackingDigits)
	if err != nil {
		return "", err
	}
	return "TRK" + digits, nil
}

func randomFrom(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
