// Package engine implements the trading ledger core: order placement with
// fund reservation, fill execution, rejection with refund, fee computation,
// and cost-basis accounting.
//
// Every mutating operation runs inside one store transaction. Any error
// aborts the whole transaction — no partial ledger state is ever observable.
// All monetary values use shopspring/decimal — never float64 for money.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperdex/trading-engine/internal/model"
	"github.com/paperdex/trading-engine/internal/store"
)

// Engine executes ledger operations against a transactional store.
// It never retries: a failed transaction surfaces a typed error and the
// caller decides whether to repeat the whole operation.
type Engine struct {
	store store.Store
	seed  map[string]decimal.Decimal
}

// New creates an engine. seed is the starting-balance table applied once per
// user by InitPortfolio; a zeroed position row is created for every seeded
// asset except the quote currency of the seed entry itself.
func New(st store.Store, seed map[string]decimal.Decimal) *Engine {
	return &Engine{store: st, seed: seed}
}

// PlaceOrderRequest describes a market-order placement. PriceSnapshot is a
// pre-fetched, already-validated oracle price; the engine never fetches
// prices or judges staleness.
type PlaceOrderRequest struct {
	UserID        string
	Side          model.Side
	BaseAsset     string
	QuoteAsset    string
	RequestedSize decimal.Decimal
	PriceSnapshot decimal.Decimal
}

// PlaceOrderResult reports the created order and the fee the fill is
// expected to charge. The fee is display-only at this point: nothing is
// deducted until the order fills.
type PlaceOrderResult struct {
	OrderID      string
	EstimatedFee decimal.Decimal
}

// PlaceOrder validates the request, reserves funds, and creates a pending
// order, all in one transaction.
//
// Buys reserve the full cost (size × snapshot price) by moving it from the
// quote balance's available to locked; a later rejection refunds exactly
// that amount. Sells reserve nothing — base holdings are checked inside the
// fill transaction instead.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if err := ValidatePlacement(req.Side, req.BaseAsset, req.QuoteAsset, req.RequestedSize, req.PriceSnapshot); err != nil {
		return nil, err
	}

	cost := req.RequestedSize.Mul(req.PriceSnapshot)
	estimatedFee, err := Fee(req.PriceSnapshot, req.RequestedSize)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		Side:             req.Side,
		BaseAsset:        req.BaseAsset,
		QuoteAsset:       req.QuoteAsset,
		RequestedSize:    req.RequestedSize,
		PriceAtOrderTime: req.PriceSnapshot,
		Status:           model.StatusPending,
		FeesApplied:      decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if req.Side == model.SideBuy {
			quote, err := tx.BalanceForUpdate(ctx, req.UserID, req.QuoteAsset)
			if err != nil {
				return err
			}
			if quote.Available.LessThan(cost) {
				return fmt.Errorf("%w: need %s %s, have %s",
					ErrInsufficientBalance, cost, req.QuoteAsset, quote.Available)
			}
			quote.Available = quote.Available.Sub(cost)
			quote.Locked = quote.Locked.Add(cost)
			quote.UpdatedAt = now
			if err := tx.UpdateBalance(ctx, quote); err != nil {
				return err
			}
		}
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	return &PlaceOrderResult{OrderID: order.ID, EstimatedFee: estimatedFee}, nil
}

// FillOrder executes a pending order against the given price and size,
// atomically updating the order, trade log, balances, and position.
// executedSize must not exceed the order's requested size; the cost of any
// unexecuted remainder of a buy is refunded at the placement price.
func (e *Engine) FillOrder(ctx context.Context, orderID string, executedPrice, executedSize decimal.Decimal) error {
	if err := ValidateExecution(executedPrice, executedSize); err != nil {
		return err
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
			}
			return err
		}
		if err := ValidateTransition(order.Status, model.StatusFilled); err != nil {
			return err
		}
		if executedSize.GreaterThan(order.RequestedSize) {
			return fmt.Errorf("%w: executed size %s exceeds requested %s",
				ErrValidation, executedSize, order.RequestedSize)
		}

		fee, err := Fee(executedPrice, executedSize)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		order.Status = model.StatusFilled
		order.FeesApplied = fee
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		trade := &model.Trade{
			ID:            uuid.New().String(),
			OrderID:       order.ID,
			UserID:        order.UserID,
			Side:          order.Side,
			ExecutedPrice: executedPrice,
			ExecutedSize:  executedSize,
			Fee:           fee,
			CreatedAt:     now,
		}
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return err
		}

		if err := e.settleBalances(ctx, tx, order, executedPrice, executedSize, fee, now); err != nil {
			return err
		}

		pos, err := tx.PositionForUpdate(ctx, order.UserID, order.BaseAsset)
		if err != nil {
			return err
		}
		newSize, newAvg, err := ApplyFillToPosition(order.Side, pos.Size, pos.AvgEntryPrice, executedPrice, executedSize)
		if err != nil {
			return err
		}
		pos.Size = newSize
		pos.AvgEntryPrice = newAvg
		pos.UpdatedAt = now
		return tx.UpdatePosition(ctx, pos)
	})
	if err != nil {
		e.logFailure(ctx, "fill", orderID, err)
		return err
	}
	return nil
}

// settleBalances applies the quote- and base-balance movements of a fill.
func (e *Engine) settleBalances(ctx context.Context, tx store.Tx, order *model.Order, executedPrice, executedSize, fee decimal.Decimal, now time.Time) error {
	quote, err := tx.BalanceForUpdate(ctx, order.UserID, order.QuoteAsset)
	if err != nil {
		return err
	}

	switch order.Side {
	case model.SideBuy:
		// The placement locked priceAtOrderTime × requestedSize. Release all
		// of it, refund the unexecuted remainder to available, and take the
		// fee out of available.
		locked := order.PriceAtOrderTime.Mul(order.RequestedSize)
		if quote.Locked.LessThan(locked) {
			return fmt.Errorf("%w: locked %s %s below reservation %s",
				ErrInvariantViolation, quote.Locked, order.QuoteAsset, locked)
		}
		refund := order.PriceAtOrderTime.Mul(order.RequestedSize.Sub(executedSize))
		quote.Locked = quote.Locked.Sub(locked)
		quote.Available = quote.Available.Add(refund).Sub(fee)
		if quote.Available.IsNegative() {
			return fmt.Errorf("%w: fee %s %s not covered by available balance",
				ErrInsufficientBalance, fee, order.QuoteAsset)
		}
		quote.UpdatedAt = now
		if err := tx.UpdateBalance(ctx, quote); err != nil {
			return err
		}

		base, err := tx.BalanceForUpdate(ctx, order.UserID, order.BaseAsset)
		if err != nil {
			return err
		}
		base.Available = base.Available.Add(executedSize)
		base.UpdatedAt = now
		return tx.UpdateBalance(ctx, base)

	case model.SideSell:
		// Sells reserved nothing at placement, so the base holding is
		// checked and debited here, inside the same row-locked transaction.
		base, err := tx.BalanceForUpdate(ctx, order.UserID, order.BaseAsset)
		if err != nil {
			return err
		}
		if base.Available.LessThan(executedSize) {
			return fmt.Errorf("%w: selling %s %s, have %s",
				ErrInsufficientBalance, executedSize, order.BaseAsset, base.Available)
		}
		base.Available = base.Available.Sub(executedSize)
		base.UpdatedAt = now
		if err := tx.UpdateBalance(ctx, base); err != nil {
			return err
		}

		proceeds := executedPrice.Mul(executedSize).Sub(fee)
		if proceeds.IsNegative() {
			return fmt.Errorf("%w: negative proceeds %s", ErrInvariantViolation, proceeds)
		}
		quote.Available = quote.Available.Add(proceeds)
		quote.UpdatedAt = now
		return tx.UpdateBalance(ctx, quote)

	default:
		return fmt.Errorf("%w: unknown side %q", ErrValidation, order.Side)
	}
}

// RejectOrder transitions a pending order to rejected and refunds the
// reservation. Buys get their full locked cost back — no fee was ever
// deducted, so none is lost. Sells reserved nothing, so rejection of a sell
// touches no balance.
func (e *Engine) RejectOrder(ctx context.Context, orderID string) error {
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
			}
			return err
		}
		if err := ValidateTransition(order.Status, model.StatusRejected); err != nil {
			return err
		}

		now := time.Now().UTC()
		order.Status = model.StatusRejected
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		if order.Side != model.SideBuy {
			return nil
		}

		locked := order.PriceAtOrderTime.Mul(order.RequestedSize)
		quote, err := tx.BalanceForUpdate(ctx, order.UserID, order.QuoteAsset)
		if err != nil {
			return err
		}
		if quote.Locked.LessThan(locked) {
			return fmt.Errorf("%w: locked %s %s below reservation %s",
				ErrInvariantViolation, quote.Locked, order.QuoteAsset, locked)
		}
		quote.Locked = quote.Locked.Sub(locked)
		quote.Available = quote.Available.Add(locked)
		quote.UpdatedAt = now
		return tx.UpdateBalance(ctx, quote)
	})
	if err != nil {
		e.logFailure(ctx, "reject", orderID, err)
		return err
	}
	return nil
}

// InitPortfolio creates a new user's starting balances and zeroed positions
// exactly once. Safe to call concurrently for the same user: the check and
// the creates run under a per-user exclusive lock in one transaction, so two
// near-simultaneous first logins cannot double-credit the seed.
func (e *Engine) InitPortfolio(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}

	assets := make([]string, 0, len(e.seed))
	for asset := range e.seed {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	return e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		exists, err := tx.HasBalances(ctx, userID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		now := time.Now().UTC()
		for _, asset := range assets {
			if err := tx.CreateBalance(ctx, &model.Balance{
				UserID:    userID,
				Asset:     asset,
				Available: e.seed[asset],
				Locked:    decimal.Zero,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
			if err := tx.CreatePosition(ctx, &model.Position{
				UserID:        userID,
				Asset:         asset,
				Size:          decimal.Zero,
				AvgEntryPrice: decimal.Zero,
				UpdatedAt:     now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOrder returns an order by ID.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, err
}

// GetUserOrders returns all of a user's orders, newest first.
func (e *Engine) GetUserOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return e.store.GetUserOrders(ctx, userID)
}

// GetPortfolio returns a user's balances, positions, and open orders.
// Reads are not transactionally consistent with in-flight fills; committed
// state is always visible.
func (e *Engine) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	balances, err := e.store.GetBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := e.store.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	open, err := e.store.GetOpenOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balances == nil {
		balances = []model.Balance{}
	}
	if positions == nil {
		positions = []model.Position{}
	}
	if open == nil {
		open = []model.Order{}
	}
	return &model.Portfolio{
		UserID:     userID,
		Balances:   balances,
		Positions:  positions,
		OpenOrders: open,
	}, nil
}

// logFailure logs operation failures. Invariant violations are internal
// bugs: they get full context at error level, unlike ordinary user errors.
func (e *Engine) logFailure(ctx context.Context, op, orderID string, err error) {
	if errors.Is(err, ErrInvariantViolation) {
		slog.ErrorContext(ctx, "ledger invariant violation",
			"op", op,
			"order_id", orderID,
			"err", err,
		)
		return
	}
	slog.DebugContext(ctx, "order operation failed",
		"op", op,
		"order_id", orderID,
		"err", err,
	)
}
