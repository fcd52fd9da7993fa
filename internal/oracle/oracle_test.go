package oracle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBoard_SetGet(t *testing.T) {
	b := NewBoard(time.Minute)

	if _, ok := b.Get("SOL-USDC"); ok {
		t.Error("expected miss for unknown pair")
	}

	b.Set("SOL-USDC", decimal.NewFromInt(100))
	snap, ok := b.Get("SOL-USDC")
	if !ok {
		t.Fatal("expected hit")
	}
	if !snap.Price.Equal(decimal.NewFromInt(100)) || snap.Pair != "SOL-USDC" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	b.Set("SOL-USDC", decimal.NewFromInt(105))
	snap, _ = b.Get("SOL-USDC")
	if !snap.Price.Equal(decimal.NewFromInt(105)) {
		t.Errorf("expected updated price 105, got %s", snap.Price)
	}
}

func TestBoard_Staleness(t *testing.T) {
	b := NewBoard(10 * time.Millisecond)

	b.Set("SOL-USDC", decimal.NewFromInt(100))
	if _, ok := b.Get("SOL-USDC"); !ok {
		t.Fatal("fresh price should be served")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := b.Get("SOL-USDC"); ok {
		t.Error("stale price must not be served")
	}
}

func TestBoard_NoMaxAge(t *testing.T) {
	b := NewBoard(0)

	b.Set("SOL-USDC", decimal.NewFromInt(100))
	time.Sleep(5 * time.Millisecond)
	if _, ok := b.Get("SOL-USDC"); !ok {
		t.Error("maxAge 0 disables staleness, price should be served")
	}
}
