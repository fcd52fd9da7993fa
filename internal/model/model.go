// Package model defines the core domain types shared across the trading engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the lifecycle state of an order.
// pending is the only non-terminal state; filled and rejected are terminal.
type OrderStatus string

const (
	StatusPending  OrderStatus = "pending"
	StatusFilled   OrderStatus = "filled"
	StatusRejected OrderStatus = "rejected"
)

// Balance is the per-user, per-asset record of spendable and reserved funds.
// Invariant: Available >= 0 and Locked >= 0 at all times. Funds move between
// the two fields only through placement, fill, and rejection.
type Balance struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Asset     string          `json:"asset" db:"asset"`
	Available decimal.Decimal `json:"available" db:"available"`
	Locked    decimal.Decimal `json:"locked" db:"locked"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Position is a per-user, per-asset holding with weighted-average cost basis.
// Size >= 0 (no short selling); AvgEntryPrice is zero exactly when Size is zero.
type Position struct {
	UserID        string          `json:"user_id" db:"user_id"`
	Asset         string          `json:"asset" db:"asset"`
	Size          decimal.Decimal `json:"size" db:"size"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price" db:"avg_entry_price"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Order is an immediate market order. Created pending, mutated exactly once
// to a terminal state, immutable afterward.
type Order struct {
	ID               string          `json:"id" db:"id"`
	UserID           string          `json:"user_id" db:"user_id"`
	Side             Side            `json:"side" db:"side"`
	BaseAsset        string          `json:"base_asset" db:"base_asset"`
	QuoteAsset       string          `json:"quote_asset" db:"quote_asset"`
	RequestedSize    decimal.Decimal `json:"requested_size" db:"requested_size"`
	PriceAtOrderTime decimal.Decimal `json:"price_at_order_time" db:"price_at_order_time"`
	Status           OrderStatus     `json:"status" db:"status"`
	FeesApplied      decimal.Decimal `json:"fees_applied" db:"fees_applied"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Trade is an immutable execution record. Once created, trades are never
// modified or deleted — they are the audit trail.
type Trade struct {
	ID            string          `json:"id" db:"id"`
	OrderID       string          `json:"order_id" db:"order_id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Side          Side            `json:"side" db:"side"`
	ExecutedPrice decimal.Decimal `json:"executed_price" db:"executed_price"`
	ExecutedSize  decimal.Decimal `json:"executed_size" db:"executed_size"`
	Fee           decimal.Decimal `json:"fee" db:"fee"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Portfolio aggregates everything a user holds: balances, positions, and
// orders still awaiting execution.
type Portfolio struct {
	UserID     string     `json:"user_id"`
	Balances   []Balance  `json:"balances"`
	Positions  []Position `json:"positions"`
	OpenOrders []Order    `json:"open_orders"`
}
