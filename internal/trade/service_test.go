package trade_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/paperdex/trading-engine/internal/engine"
	"github.com/paperdex/trading-engine/internal/market"
	"github.com/paperdex/trading-engine/internal/model"
	"github.com/paperdex/trading-engine/internal/oracle"
	"github.com/paperdex/trading-engine/internal/store"
	"github.com/paperdex/trading-engine/internal/trade"
)

type testEnv struct {
	srv    *httptest.Server
	prices *oracle.Board
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ms := store.NewMemoryStore()
	eng := engine.New(ms, market.StartingBalances())
	prices := oracle.NewBoard(time.Minute)
	svc := trade.NewService(eng, ms, prices, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", svc.PlaceOrder)
		r.Post("/orders/{orderID}/reject", svc.RejectOrder)
		r.Get("/orders/{orderID}", svc.GetOrder)
		r.Get("/orders", svc.ListOrders)
		r.Get("/trades", svc.ListTrades)
		r.Post("/portfolio/{userID}", svc.InitPortfolio)
		r.Get("/portfolio/{userID}", svc.GetPortfolio)
		r.Put("/oracle/{pair}", svc.SetPrice)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, prices: prices}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func (e *testEnv) initUser(t *testing.T, userID string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/portfolio/"+userID, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("init portfolio: status %d: %s", resp.StatusCode, body)
	}
}

func (e *testEnv) setPrice(t *testing.T, pair string, price float64) {
	t.Helper()
	resp, body := e.do(t, http.MethodPut, "/api/v1/oracle/"+pair,
		map[string]any{"price": price})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set price: status %d: %s", resp.StatusCode, body)
	}
}

func placeBody(userID, pair, side string, size float64) map[string]any {
	return map[string]any{
		"user_id": userID,
		"pair":    pair,
		"side":    side,
		"size":    size,
	}
}

func TestPlaceOrder_BuyExecutes(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")
	env.setPrice(t, "SOL-USDC", 100)

	resp, body := env.do(t, http.MethodPost, "/api/v1/orders", placeBody("alice", "SOL-USDC", "buy", 8))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var res trade.PlaceOrderResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Order.Status != model.StatusFilled {
		t.Errorf("expected filled, got %s", res.Order.Status)
	}
	if !res.ExecutedPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected executed price 100, got %s", res.ExecutedPrice)
	}
	if !res.Fee.Equal(decimal.NewFromFloat(0.8)) {
		t.Errorf("expected fee 0.8, got %s", res.Fee)
	}

	// Ledger moved: 1000 - 800 - 0.8 fee, 8 SOL credited.
	resp, body = env.do(t, http.MethodGet, "/api/v1/portfolio/alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get portfolio: status %d: %s", resp.StatusCode, body)
	}
	var pf model.Portfolio
	if err := json.Unmarshal(body, &pf); err != nil {
		t.Fatalf("decode portfolio: %v", err)
	}
	for _, b := range pf.Balances {
		switch b.Asset {
		case "USDC":
			if !b.Available.Equal(decimal.NewFromFloat(199.2)) {
				t.Errorf("USDC available = %s, want 199.2", b.Available)
			}
			if !b.Locked.IsZero() {
				t.Errorf("USDC locked = %s, want 0", b.Locked)
			}
		case "SOL":
			if !b.Available.Equal(decimal.NewFromInt(8)) {
				t.Errorf("SOL available = %s, want 8", b.Available)
			}
		}
	}
	if len(pf.OpenOrders) != 0 {
		t.Errorf("expected no open orders, got %d", len(pf.OpenOrders))
	}
}

func TestPlaceOrder_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")
	env.setPrice(t, "SOL-USDC", 100)

	resp, body := env.do(t, http.MethodPost, "/api/v1/orders", placeBody("alice", "SOL-USDC", "buy", 11))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", resp.StatusCode, body)
	}
}

func TestPlaceOrder_OversellRejectsOrder(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")
	env.setPrice(t, "SOL-USDC", 100)

	// Placement of a sell succeeds (nothing reserved), the fill fails on the
	// missing holdings, and the handler rejects the order.
	resp, body := env.do(t, http.MethodPost, "/api/v1/orders", placeBody("alice", "SOL-USDC", "sell", 5))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", resp.StatusCode, body)
	}

	// No pending order should linger.
	resp, body = env.do(t, http.MethodGet, "/api/v1/orders?user_id=alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list orders: status %d: %s", resp.StatusCode, body)
	}
	var orders []model.Order
	if err := json.Unmarshal(body, &orders); err != nil {
		t.Fatalf("decode orders: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != model.StatusRejected {
		t.Errorf("expected one rejected order, got %+v", orders)
	}
}

func TestPlaceOrder_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")
	env.setPrice(t, "SOL-USDC", 100)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing user", placeBody("", "SOL-USDC", "buy", 1), http.StatusBadRequest},
		{"invalid pair", placeBody("alice", "solusdc", "buy", 1), http.StatusBadRequest},
		{"unsupported pair", placeBody("alice", "DOGE-USDC", "buy", 1), http.StatusBadRequest},
		{"invalid side", placeBody("alice", "SOL-USDC", "short", 1), http.StatusBadRequest},
		{"zero size", placeBody("alice", "SOL-USDC", "buy", 0), http.StatusBadRequest},
		{"negative size", placeBody("alice", "SOL-USDC", "buy", -1), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/v1/orders", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestPlaceOrder_NoPrice(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")

	resp, body := env.do(t, http.MethodPost, "/api/v1/orders", placeBody("alice", "SOL-USDC", "buy", 1))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503: %s", resp.StatusCode, body)
	}
}

func TestRejectOrder_Flow(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")
	env.setPrice(t, "SOL-USDC", 100)

	resp, body := env.do(t, http.MethodPost, "/api/v1/orders", placeBody("alice", "SOL-USDC", "buy", 2))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place: status %d: %s", resp.StatusCode, body)
	}
	var placed trade.PlaceOrderResponse
	if err := json.Unmarshal(body, &placed); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The order already filled, so a rejection is an invalid transition.
	resp, body = env.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/orders/%s/reject", placed.Order.ID), nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("reject filled order: status %d, want 409: %s", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/orders/nonexistent/reject", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("reject missing order: status %d, want 404", resp.StatusCode)
	}
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")
	env.setPrice(t, "SOL-USDC", 100)

	resp, body := env.do(t, http.MethodPost, "/api/v1/orders", placeBody("alice", "SOL-USDC", "buy", 1))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place: status %d: %s", resp.StatusCode, body)
	}
	var placed trade.PlaceOrderResponse
	if err := json.Unmarshal(body, &placed); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/orders/"+placed.Order.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get order: status %d: %s", resp.StatusCode, body)
	}
	var order model.Order
	if err := json.Unmarshal(body, &order); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if order.ID != placed.Order.ID || order.Status != model.StatusFilled {
		t.Errorf("unexpected order: %+v", order)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/orders/nonexistent", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing order: status %d, want 404", resp.StatusCode)
	}
}

func TestListTrades(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")
	env.setPrice(t, "SOL-USDC", 100)

	resp, body := env.do(t, http.MethodPost, "/api/v1/orders", placeBody("alice", "SOL-USDC", "buy", 3))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place: status %d: %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/trades?user_id=alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list trades: status %d: %s", resp.StatusCode, body)
	}
	var trades []model.Trade
	if err := json.Unmarshal(body, &trades); err != nil {
		t.Fatalf("decode trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if !trades[0].ExecutedSize.Equal(decimal.NewFromInt(3)) {
		t.Errorf("trade size = %s, want 3", trades[0].ExecutedSize)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/trades", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing user_id: status %d, want 400", resp.StatusCode)
	}
}

func TestInitPortfolio_Idempotent(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/portfolio/bob", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first init: status %d: %s", resp.StatusCode, body)
	}
	var pf model.Portfolio
	if err := json.Unmarshal(body, &pf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pf.Balances) != 4 {
		t.Errorf("expected 4 balances (USDC + 3 bases), got %d", len(pf.Balances))
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/portfolio/bob", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second init: status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &pf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, b := range pf.Balances {
		if b.Asset == "USDC" && !b.Available.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("repeat init changed USDC: %s", b.Available)
		}
	}
}

func TestSetPrice_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPut, "/api/v1/oracle/SOL-USDC", map[string]any{"price": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero price: status %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPut, "/api/v1/oracle/garbage", map[string]any{"price": 100})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad pair: status %d, want 400", resp.StatusCode)
	}
}
