package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/paperdex/trading-engine/internal/model"
)

// ApplyFillToPosition computes the new size and weighted-average entry price
// for a position after a fill.
//
// Buys pyramid: the new basis is the size-weighted average of the old basis
// and the executed price. Sells shrink the size; a partial close keeps the
// basis unchanged (realized P&L is measured against it), and a full close
// resets the basis to zero.
func ApplyFillToPosition(side model.Side, size, avgEntryPrice, executedPrice, executedSize decimal.Decimal) (newSize, newAvg decimal.Decimal, err error) {
	switch side {
	case model.SideBuy:
		newSize = size.Add(executedSize)
		if newSize.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, decimal.Zero,
				fmt.Errorf("%w: buy fill produced non-positive size %s", ErrInvariantViolation, newSize)
		}
		if size.IsZero() {
			// Fresh cost basis.
			return newSize, executedPrice, nil
		}
		weighted := avgEntryPrice.Mul(size).Add(executedPrice.Mul(executedSize))
		return newSize, weighted.Div(newSize), nil

	case model.SideSell:
		newSize = size.Sub(executedSize)
		if newSize.IsNegative() {
			// The base-balance check should have caught this already; a
			// negative position means balance and position are out of sync.
			return decimal.Zero, decimal.Zero,
				fmt.Errorf("%w: sell of %s exceeds position size %s", ErrInvariantViolation, executedSize, size)
		}
		if newSize.IsZero() {
			return decimal.Zero, decimal.Zero, nil
		}
		return newSize, avgEntryPrice, nil

	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: unknown side %q", ErrValidation, side)
	}
}
