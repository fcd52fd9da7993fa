package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paperdex/trading-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache on the reporting side. Writes run against the primary inside the
// transaction and invalidate every touched user's cached views after commit.
// The money-movement path never reads from the cache; only the reporting
// queries tolerate a short staleness window.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// WithinTx delegates to the primary store, recording which users and orders
// the transaction touched so their cached views can be dropped after commit.
func (s *CachedStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	rec := &recordingTx{users: map[string]bool{}, orders: map[string]bool{}}
	err := s.primary.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		rec.Tx = tx
		return fn(ctx, rec)
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(rec.users)*5+len(rec.orders))
	for userID := range rec.users {
		keys = append(keys,
			balancesKey(userID), positionsKey(userID),
			ordersKey(userID), openOrdersKey(userID), tradesKey(userID))
	}
	for orderID := range rec.orders {
		keys = append(keys, orderKey(orderID))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// recordingTx passes every call through while remembering touched rows.
type recordingTx struct {
	Tx
	users  map[string]bool
	orders map[string]bool
}

func (t *recordingTx) BalanceForUpdate(ctx context.Context, userID, asset string) (*model.Balance, error) {
	t.users[userID] = true
	return t.Tx.BalanceForUpdate(ctx, userID, asset)
}

func (t *recordingTx) PositionForUpdate(ctx context.Context, userID, asset string) (*model.Position, error) {
	t.users[userID] = true
	return t.Tx.PositionForUpdate(ctx, userID, asset)
}

func (t *recordingTx) CreateOrder(ctx context.Context, o *model.Order) error {
	t.users[o.UserID] = true
	t.orders[o.ID] = true
	return t.Tx.CreateOrder(ctx, o)
}

func (t *recordingTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	t.users[o.UserID] = true
	t.orders[o.ID] = true
	return t.Tx.UpdateOrder(ctx, o)
}

func (t *recordingTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	t.users[tr.UserID] = true
	return t.Tx.InsertTrade(ctx, tr)
}

func (t *recordingTx) CreateBalance(ctx context.Context, b *model.Balance) error {
	t.users[b.UserID] = true
	return t.Tx.CreateBalance(ctx, b)
}

func (t *recordingTx) CreatePosition(ctx context.Context, p *model.Position) error {
	t.users[p.UserID] = true
	return t.Tx.CreatePosition(ctx, p)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var o model.Order
	if s.cacheGet(ctx, orderKey(orderID), &o) {
		return &o, nil
	}
	order, err := s.primary.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, orderKey(orderID), order)
	return order, nil
}

func (s *CachedStore) GetUserOrders(ctx context.Context, userID string) ([]model.Order, error) {
	var orders []model.Order
	if s.cacheGet(ctx, ordersKey(userID), &orders) {
		return orders, nil
	}
	orders, err := s.primary.GetUserOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, ordersKey(userID), orders)
	return orders, nil
}

func (s *CachedStore) GetOpenOrders(ctx context.Context, userID string) ([]model.Order, error) {
	var orders []model.Order
	if s.cacheGet(ctx, openOrdersKey(userID), &orders) {
		return orders, nil
	}
	orders, err := s.primary.GetOpenOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, openOrdersKey(userID), orders)
	return orders, nil
}

func (s *CachedStore) GetBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	var balances []model.Balance
	if s.cacheGet(ctx, balancesKey(userID), &balances) {
		return balances, nil
	}
	balances, err := s.primary.GetBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, balancesKey(userID), balances)
	return balances, nil
}

func (s *CachedStore) GetPositions(ctx context.Context, userID string) ([]model.Position, error) {
	var positions []model.Position
	if s.cacheGet(ctx, positionsKey(userID), &positions) {
		return positions, nil
	}
	positions, err := s.primary.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, positionsKey(userID), positions)
	return positions, nil
}

func (s *CachedStore) GetUserTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	var trades []model.Trade
	if s.cacheGet(ctx, tradesKey(userID), &trades) {
		return trades, nil
	}
	trades, err := s.primary.GetUserTrades(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, tradesKey(userID), trades)
	return trades, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheGet(ctx context.Context, k string, dst any) bool {
	data, err := s.rdb.Get(ctx, k).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cacheSet(ctx context.Context, k string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, k, data, s.ttl)
	}
}

func orderKey(id string) string       { return fmt.Sprintf("order:%s", id) }
func ordersKey(uid string) string     { return fmt.Sprintf("orders:%s", uid) }
func openOrdersKey(uid string) string { return fmt.Sprintf("open_orders:%s", uid) }
func balancesKey(uid string) string   { return fmt.Sprintf("balances:%s", uid) }
func positionsKey(uid string) string  { return fmt.Sprintf("positions:%s", uid) }
func tradesKey(uid string) string     { return fmt.Sprintf("trades:%s", uid) }
