package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeRate is the fixed proportional fee charged on executed trade value:
// 0.1%, applied at fill time only. Rejected orders never pay a fee.
var FeeRate = decimal.NewFromFloat(0.001)

// Fee computes the fee for a trade of the given price and size.
// A fee is never negative and never exceeds the trade value; either
// condition means the inputs were corrupt.
func Fee(price, size decimal.Decimal) (decimal.Decimal, error) {
	value := price.Mul(size)
	fee := value.Mul(FeeRate)

	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative fee %s for value %s", ErrInvariantViolation, fee, value)
	}
	if fee.GreaterThan(value) {
		return decimal.Zero, fmt.Errorf("%w: fee %s exceeds trade value %s", ErrInvariantViolation, fee, value)
	}
	return fee, nil
}
