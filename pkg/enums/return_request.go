package enums

import "fmt"

// ReturnSolution is the remedy a buyer asks for when returning an order.
type ReturnSolution string

const (
	ReturnSolutionReturnRefund ReturnSolution = "return_refund"
	ReturnSolutionReplacement  ReturnSolution = "replacement"
	ReturnSolutionRefundOnly   ReturnSolution = "refund_only"
)

var validReturnSolutions = []ReturnSolution{
	ReturnSolutionReturnRefund,
	ReturnSolutionReplacement,
	ReturnSolutionRefundOnly,
}

func (s ReturnSolution) String() string {
	return string(s)
}

func (s ReturnSolution) IsValid() bool {
	for _, candidate := range validReturnSolutions {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReturnSolution converts raw input into a ReturnSolution.
func ParseReturnSolution(value string) (ReturnSolution, error) {
	for _, candidate := range validReturnSolutions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return solution %q", value)
}

// ReturnReason is the buyer-selected cause of a return.
type ReturnReason string

const (
	ReturnReasonDamaged        ReturnReason = "damaged"
	ReturnReasonWrongItem      ReturnReason = "wrong_item"
	ReturnReasonNotAsDescribed ReturnReason = "not_as_described"
	ReturnReasonMissingParts   ReturnReason = "missing_parts"
	ReturnReasonChangedMind    ReturnReason = "changed_mind"
	ReturnReasonOther          ReturnReason = "other"
)

var validReturnReasons = []ReturnReason{
	ReturnReasonDamaged,
	ReturnReasonWrongItem,
	ReturnReasonNotAsDescribed,
	ReturnReasonMissingParts,
	ReturnReasonChangedMind,
	ReturnReasonOther,
}

func (r ReturnReason) IsValid() bool {
	for _, candidate := range validReturnReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnReason converts raw input into a ReturnReason.
func ParseReturnReason(value string) (ReturnReason, error) {
	for _, candidate := range validReturnReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return reason %q", value)
}
