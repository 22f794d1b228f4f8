package enums

import "fmt"

// LedgerReason explains why an inventory ledger entry exists.
type LedgerReason string

const (
	LedgerReasonOnlineSale       LedgerReason = "online_sale"
	LedgerReasonManualAdjustment LedgerReason = "manual_adjustment"
	LedgerReasonReturnRestock    LedgerReason = "return_restock"
	LedgerReasonCancelRestock    LedgerReason = "cancel_restock"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonOnlineSale,
	LedgerReasonManualAdjustment,
	LedgerReasonReturnRestock,
	LedgerReasonCancelRestock,
}

// String implements fmt.Stringer.
func (r LedgerReason) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseLedgerReason converts raw input into a LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
