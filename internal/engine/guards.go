package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/paperdex/trading-engine/internal/model"
)

// ValidatePlacement checks an order placement request before anything is
// read or written. Every failure is user-correctable.
func ValidatePlacement(side model.Side, baseAsset, quoteAsset string, size, price decimal.Decimal) error {
	if side != model.SideBuy && side != model.SideSell {
		return fmt.Errorf("%w: side must be buy or sell, got %q", ErrValidation, side)
	}
	if baseAsset == "" || quoteAsset == "" {
		return fmt.Errorf("%w: base and quote assets are required", ErrValidation)
	}
	if baseAsset == quoteAsset {
		return fmt.Errorf("%w: base and quote assets must differ, got %s", ErrValidation, baseAsset)
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: size must be positive, got %s", ErrValidation, size)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: price must be positive, got %s", ErrValidation, price)
	}
	return nil
}

// ValidateExecution checks fill parameters: price and size must both be
// strictly positive.
func ValidateExecution(price, size decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: executed price must be positive, got %s", ErrValidation, price)
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: executed size must be positive, got %s", ErrValidation, size)
	}
	return nil
}

// ValidateTransition enforces the order state machine:
// pending → filled | rejected, both terminal. No transition is valid out of
// a terminal state, and an order never re-enters pending.
func ValidateTransition(from, to model.OrderStatus) error {
	if from == model.StatusPending && (to == model.StatusFilled || to == model.StatusRejected) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
