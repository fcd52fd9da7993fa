package engine

import "errors"

var (
	// ErrValidation is returned for malformed input: bad side or asset,
	// non-positive size or price, identical base and quote. Always detected
	// before any mutation; user-correctable.
	ErrValidation = errors.New("engine: validation failed")

	// ErrInsufficientBalance is returned when available funds are below the
	// required cost at placement, or base-asset holdings cannot cover a sell
	// fill. User-correctable.
	ErrInsufficientBalance = errors.New("engine: insufficient balance")

	// ErrInvalidTransition is returned for an attempted fill or rejection of
	// a non-pending order. Indicates a caller bug or a race already resolved
	// by another request; never retried automatically.
	ErrInvalidTransition = errors.New("engine: invalid order state transition")

	// ErrInvariantViolation marks an internal consistency failure — a
	// would-be negative balance or position, desynchronized base balance, or
	// an impossible fee. Fatal, not user-correctable; the surrounding
	// transaction must abort without partial writes.
	ErrInvariantViolation = errors.New("engine: ledger invariant violation")

	// ErrOrderNotFound is returned when an order ID does not exist.
	ErrOrderNotFound = errors.New("engine: order not found")
)
