// Package trade provides the HTTP handlers for order placement, rejection,
// and portfolio queries.
//
// The transport layer is deliberately thin: every invariant lives in the
// engine, and each handler is one or two engine calls plus error mapping.
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/paperdex/trading-engine/internal/engine"
	"github.com/paperdex/trading-engine/internal/market"
	"github.com/paperdex/trading-engine/internal/metrics"
	"github.com/paperdex/trading-engine/internal/model"
	"github.com/paperdex/trading-engine/internal/oracle"
	"github.com/paperdex/trading-engine/internal/store"
)

// Service wires the ledger engine to HTTP.
type Service struct {
	engine *engine.Engine
	store  store.Store
	prices *oracle.Board
	wsHub  *WSHub // optional hub for execution broadcasts
}

// NewService creates the trade service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(eng *engine.Engine, st store.Store, prices *oracle.Board, hub *WSHub) *Service {
	return &Service{
		engine: eng,
		store:  st,
		prices: prices,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// PlaceOrderRequest is the JSON body for POST /api/v1/orders.
type PlaceOrderRequest struct {
	UserID string          `json:"user_id"`
	Pair   string          `json:"pair"` // e.g. SOL-USDC
	Side   model.Side      `json:"side"` // "buy" or "sell"
	Size   decimal.Decimal `json:"size"`
}

// PlaceOrderResponse is returned from POST /api/v1/orders.
type PlaceOrderResponse struct {
	Order         *model.Order    `json:"order"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	Fee           decimal.Decimal `json:"fee"`
}

// SetPriceRequest is the JSON body for PUT /api/v1/oracle/{pair}.
type SetPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// --- HTTP Handlers ---

// PlaceOrder handles POST /api/v1/orders.
//
// Market orders execute in one shot: the placement reserves funds and the
// fill runs immediately against the current oracle snapshot. The engine
// keeps the two as separate transactions, so a fill failure rejects the
// pending order and refunds the reservation.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	pair, err := market.ParsePair(req.Pair)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, ok := s.prices.Get(pair.Symbol)
	if !ok {
		writeError(w, "no fresh price for "+pair.Symbol, http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	start := time.Now()

	placed, err := s.engine.PlaceOrder(ctx, engine.PlaceOrderRequest{
		UserID:        req.UserID,
		Side:          req.Side,
		BaseAsset:     pair.Base,
		QuoteAsset:    pair.Quote,
		RequestedSize: req.Size,
		PriceSnapshot: snap.Price,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.OrdersPlaced.WithLabelValues(string(req.Side)).Inc()

	if err := s.engine.FillOrder(ctx, placed.OrderID, snap.Price, req.Size); err != nil {
		// Fill failed: release the reservation before reporting the error.
		if rejErr := s.engine.RejectOrder(ctx, placed.OrderID); rejErr != nil {
			slog.Error("reject after failed fill", "order_id", placed.OrderID, "err", rejErr)
		} else {
			metrics.OrdersRejected.Inc()
		}
		s.writeEngineError(w, err)
		return
	}
	metrics.OrdersFilled.WithLabelValues(string(req.Side)).Inc()
	metrics.FillLatency.WithLabelValues(string(req.Side)).Observe(time.Since(start).Seconds())

	order, err := s.engine.GetOrder(ctx, placed.OrderID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	slog.Info("order executed",
		"order_id", order.ID,
		"user", req.UserID,
		"pair", pair.Symbol,
		"side", req.Side,
		"size", req.Size.String(),
		"price", snap.Price.String(),
		"fee", order.FeesApplied.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "order_executed",
			OrderID: order.ID,
			Pair:    pair.Symbol,
			Side:    string(req.Side),
			Price:   snap.Price.String(),
			Size:    req.Size.String(),
		})
	}

	writeJSON(w, http.StatusOK, PlaceOrderResponse{
		Order:         order,
		ExecutedPrice: snap.Price,
		Fee:           order.FeesApplied,
	})
}

// RejectOrder handles POST /api/v1/orders/{orderID}/reject.
func (s *Service) RejectOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := s.engine.RejectOrder(r.Context(), orderID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.OrdersRejected.Inc()

	order, err := s.engine.GetOrder(r.Context(), orderID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetOrder handles GET /api/v1/orders/{orderID}.
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /api/v1/orders?user_id=, newest first.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	orders, err := s.engine.GetUserOrders(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// ListTrades handles GET /api/v1/trades?user_id=, newest first.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	trades, err := s.store.GetUserTrades(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// InitPortfolio handles POST /api/v1/portfolio/{userID}. Idempotent: the
// first call seeds the starting balances, repeats are no-ops.
func (s *Service) InitPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := s.engine.InitPortfolio(r.Context(), userID); err != nil {
		s.writeEngineError(w, err)
		return
	}

	portfolio, err := s.engine.GetPortfolio(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, portfolio)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.engine.GetPortfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// SetPrice handles PUT /api/v1/oracle/{pair}. Stands in for the real price
// ingestion pipeline, which lives outside this service.
func (s *Service) SetPrice(w http.ResponseWriter, r *http.Request) {
	pairSymbol := chi.URLParam(r, "pair")
	pair, err := market.ParsePair(pairSymbol)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SetPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	s.prices.Set(pair.Symbol, req.Price)
	writeJSON(w, http.StatusOK, map[string]string{"pair": pair.Symbol, "price": req.Price.String()})
}

// writeEngineError maps engine errors to HTTP responses. Invariant
// violations never leak detail to the client; they are logged with full
// context instead.
func (s *Service) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrInsufficientBalance):
		metrics.InsufficientBalance.Inc()
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrInvalidTransition):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrOrderNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrInvariantViolation):
		metrics.InvariantViolations.Inc()
		slog.Error("ledger invariant violation", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
