// Package oracle holds the latest externally supplied price per pair.
//
// Price ingestion and validation happen upstream; this is only the handoff
// point between the ingestion path and the order flow. The ledger engine
// never reads from here directly — request handlers take a snapshot and pass
// the value in.
package oracle

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time price for one pair.
type Snapshot struct {
	Pair      string          `json:"pair"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Board keeps the last known price per pair and refuses to serve values
// older than the freshness window.
type Board struct {
	mu     sync.RWMutex
	maxAge time.Duration
	prices map[string]Snapshot
}

// NewBoard creates a board. maxAge <= 0 disables the staleness check.
func NewBoard(maxAge time.Duration) *Board {
	return &Board{
		maxAge: maxAge,
		prices: make(map[string]Snapshot),
	}
}

// Set records a new price for a pair.
func (b *Board) Set(pair string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[pair] = Snapshot{
		Pair:      pair,
		Price:     price,
		UpdatedAt: time.Now().UTC(),
	}
}

// Get returns the current snapshot for a pair, or false when the pair is
// unknown or the value is stale.
func (b *Board) Get(pair string) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap, ok := b.prices[pair]
	if !ok {
		return Snapshot{}, false
	}
	if b.maxAge > 0 && time.Since(snap.UpdatedAt) > b.maxAge {
		return Snapshot{}, false
	}
	return snap, true
}
