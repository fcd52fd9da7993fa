// Package store defines the persistence layer for the trading ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache on the reporting side), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/paperdex/trading-engine/internal/model"
)

// ErrNotFound is returned by reads when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Tx is the unit of work handed to engine operations. Every method runs
// inside one database transaction; nothing is visible outside it until
// WithinTx commits. The ForUpdate reads take a row lock, serializing
// concurrent transactions that touch the same (user, asset) row.
type Tx interface {
	// BalanceForUpdate returns the balance row under a row lock, creating a
	// zeroed row first if none exists.
	BalanceForUpdate(ctx context.Context, userID, asset string) (*model.Balance, error)
	UpdateBalance(ctx context.Context, b *model.Balance) error

	// PositionForUpdate returns the position row under a row lock, creating
	// a zeroed row first if none exists.
	PositionForUpdate(ctx context.Context, userID, asset string) (*model.Position, error)
	UpdatePosition(ctx context.Context, p *model.Position) error

	CreateOrder(ctx context.Context, o *model.Order) error
	// OrderForUpdate returns the order under a row lock, or ErrNotFound.
	OrderForUpdate(ctx context.Context, orderID string) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error

	// InsertTrade appends an immutable execution record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// LockUser takes an exclusive per-user lock held until the transaction
	// ends. Used to make portfolio initialization race-safe.
	LockUser(ctx context.Context, userID string) error
	HasBalances(ctx context.Context, userID string) (bool, error)
	CreateBalance(ctx context.Context, b *model.Balance) error
	CreatePosition(ctx context.Context, p *model.Position) error
}

// Store is the persistence interface. Writes go through WithinTx; the read
// methods serve reporting paths and are allowed to lag in-flight
// transactions (eventual visibility after commit).
type Store interface {
	// WithinTx runs fn inside a single transaction: commit when fn returns
	// nil, guaranteed rollback when it returns an error. No partial ledger
	// state is ever observable.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	// GetUserOrders returns all of a user's orders, newest first.
	GetUserOrders(ctx context.Context, userID string) ([]model.Order, error)
	// GetOpenOrders returns a user's pending orders, newest first.
	GetOpenOrders(ctx context.Context, userID string) ([]model.Order, error)
	GetBalances(ctx context.Context, userID string) ([]model.Balance, error)
	GetPositions(ctx context.Context, userID string) ([]model.Position, error)
	GetUserTrades(ctx context.Context, userID string) ([]model.Trade, error)
}
