package store

import (
	"context"
	"sort"
	"sync"

	"github.com/paperdex/trading-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Transactions are serialized by a single mutex; rollback is a
// snapshot restore, so a failed unit of work leaves no partial state — the
// same all-or-nothing contract the PostgreSQL store provides.
type MemoryStore struct {
	mu        sync.Mutex
	balances  map[string]*model.Balance
	positions map[string]*model.Position
	orders    map[string]*model.Order
	trades    []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:  make(map[string]*model.Balance),
		positions: make(map[string]*model.Position),
		orders:    make(map[string]*model.Order),
	}
}

func key(userID, asset string) string {
	return userID + "/" + asset
}

// WithinTx serializes the unit of work under the store mutex and restores a
// snapshot of all state if fn fails.
func (s *MemoryStore) WithinTx(_ context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.Background(), &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	balances  map[string]*model.Balance
	positions map[string]*model.Position
	orders    map[string]*model.Order
	trades    []model.Trade
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		balances:  make(map[string]*model.Balance, len(s.balances)),
		positions: make(map[string]*model.Position, len(s.positions)),
		orders:    make(map[string]*model.Order, len(s.orders)),
		trades:    append([]model.Trade(nil), s.trades...),
	}
	for k, b := range s.balances {
		copy := *b
		snap.balances[k] = &copy
	}
	for k, p := range s.positions {
		copy := *p
		snap.positions[k] = &copy
	}
	for k, o := range s.orders {
		copy := *o
		snap.orders[k] = &copy
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.balances = snap.balances
	s.positions = snap.positions
	s.orders = snap.orders
	s.trades = snap.trades
}

// memTx operates directly on the store's maps; WithinTx already holds the
// store mutex, so row locking is implicit.
type memTx struct {
	s *MemoryStore
}

func (t *memTx) BalanceForUpdate(_ context.Context, userID, asset string) (*model.Balance, error) {
	k := key(userID, asset)
	b, ok := t.s.balances[k]
	if !ok {
		b = &model.Balance{UserID: userID, Asset: asset}
		t.s.balances[k] = b
	}
	return b, nil
}

func (t *memTx) UpdateBalance(_ context.Context, b *model.Balance) error {
	copy := *b
	t.s.balances[key(b.UserID, b.Asset)] = &copy
	return nil
}

func (t *memTx) PositionForUpdate(_ context.Context, userID, asset string) (*model.Position, error) {
	k := key(userID, asset)
	p, ok := t.s.positions[k]
	if !ok {
		p = &model.Position{UserID: userID, Asset: asset}
		t.s.positions[k] = p
	}
	return p, nil
}

func (t *memTx) UpdatePosition(_ context.Context, p *model.Position) error {
	copy := *p
	t.s.positions[key(p.UserID, p.Asset)] = &copy
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *model.Order) error {
	copy := *o
	t.s.orders[o.ID] = &copy
	return nil
}

func (t *memTx) OrderForUpdate(_ context.Context, orderID string) (*model.Order, error) {
	o, ok := t.s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *model.Order) error {
	copy := *o
	t.s.orders[o.ID] = &copy
	return nil
}

func (t *memTx) InsertTrade(_ context.Context, tr *model.Trade) error {
	t.s.trades = append(t.s.trades, *tr)
	return nil
}

func (t *memTx) LockUser(_ context.Context, _ string) error {
	// The store mutex already serializes whole transactions.
	return nil
}

func (t *memTx) HasBalances(_ context.Context, userID string) (bool, error) {
	for _, b := range t.s.balances {
		if b.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateBalance(_ context.Context, b *model.Balance) error {
	copy := *b
	t.s.balances[key(b.UserID, b.Asset)] = &copy
	return nil
}

func (t *memTx) CreatePosition(_ context.Context, p *model.Position) error {
	copy := *p
	t.s.positions[key(p.UserID, p.Asset)] = &copy
	return nil
}

// --- Read side ---

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *o
	return &copy, nil
}

func (s *MemoryStore) GetUserOrders(_ context.Context, userID string) ([]model.Order, error) {
	return s.ordersWhere(func(o *model.Order) bool { return o.UserID == userID })
}

func (s *MemoryStore) GetOpenOrders(_ context.Context, userID string) ([]model.Order, error) {
	return s.ordersWhere(func(o *model.Order) bool {
		return o.UserID == userID && o.Status == model.StatusPending
	})
}

func (s *MemoryStore) ordersWhere(match func(*model.Order) bool) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []model.Order
	for _, o := range s.orders {
		if match(o) {
			orders = append(orders, *o)
		}
	}
	// Newest first.
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *MemoryStore) GetBalances(_ context.Context, userID string) ([]model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var balances []model.Balance
	for _, b := range s.balances {
		if b.UserID == userID {
			balances = append(balances, *b)
		}
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })
	return balances, nil
}

func (s *MemoryStore) GetPositions(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Asset < positions[j].Asset })
	return positions, nil
}

func (s *MemoryStore) GetUserTrades(_ context.Context, userID string) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trades []model.Trade
	for _, tr := range s.trades {
		if tr.UserID == userID {
			trades = append(trades, tr)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].CreatedAt.After(trades[j].CreatedAt) })
	return trades, nil
}
