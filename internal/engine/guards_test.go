package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/paperdex/trading-engine/internal/model"
)

func TestValidatePlacement(t *testing.T) {
	tests := []struct {
		name    string
		side    model.Side
		base    string
		quote   string
		size    decimal.Decimal
		price   decimal.Decimal
		wantErr bool
	}{
		{"valid buy", model.SideBuy, "SOL", "USDC", d(1), d(100), false},
		{"valid sell", model.SideSell, "SOL", "USDC", d(0.5), d(0.01), false},
		{"bad side", model.Side("hold"), "SOL", "USDC", d(1), d(100), true},
		{"empty base", model.SideBuy, "", "USDC", d(1), d(100), true},
		{"empty quote", model.SideBuy, "SOL", "", d(1), d(100), true},
		{"same assets", model.SideBuy, "USDC", "USDC", d(1), d(100), true},
		{"zero size", model.SideBuy, "SOL", "USDC", d(0), d(100), true},
		{"negative size", model.SideBuy, "SOL", "USDC", d(-1), d(100), true},
		{"zero price", model.SideBuy, "SOL", "USDC", d(1), d(0), true},
		{"negative price", model.SideBuy, "SOL", "USDC", d(1), d(-100), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlacement(tt.side, tt.base, tt.quote, tt.size, tt.price)
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateExecution_PositiveValuesAccepted(t *testing.T) {
	// Positive decimals must pass; truthiness-style checks that reject
	// valid positive values are exactly the bug this guard avoids.
	if err := ValidateExecution(d(100.5), d(0.001)); err != nil {
		t.Errorf("unexpected error for positive price/size: %v", err)
	}
}

func TestValidateExecution_Invalid(t *testing.T) {
	if err := ValidateExecution(d(0), d(1)); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for zero price, got %v", err)
	}
	if err := ValidateExecution(d(100), d(-1)); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for negative size, got %v", err)
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    model.OrderStatus
		to      model.OrderStatus
		wantErr bool
	}{
		{"pending to filled", model.StatusPending, model.StatusFilled, false},
		{"pending to rejected", model.StatusPending, model.StatusRejected, false},
		{"filled to filled", model.StatusFilled, model.StatusFilled, true},
		{"filled to rejected", model.StatusFilled, model.StatusRejected, true},
		{"rejected to filled", model.StatusRejected, model.StatusFilled, true},
		{"rejected to rejected", model.StatusRejected, model.StatusRejected, true},
		{"pending to pending", model.StatusPending, model.StatusPending, true},
		{"filled to pending", model.StatusFilled, model.StatusPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
