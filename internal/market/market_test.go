package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		symbol  string
		base    string
		wantErr error
	}{
		{"SOL-USDC", "SOL", nil},
		{"BTC-USDC", "BTC", nil},
		{"ETH-USDC", "ETH", nil},
		{"DOGE-USDC", "", ErrUnsupportedPair},
		{"SOL-USDT", "", ErrUnsupportedPair},
		{"sol-usdc", "", ErrInvalidPair},
		{"SOLUSDC", "", ErrInvalidPair},
		{"SOL-USDC-EXTRA", "", ErrInvalidPair},
		{"S-USDC", "", ErrInvalidPair},
		{"", "", ErrInvalidPair},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			p, err := ParsePair(tt.symbol)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParsePair(%q) err = %v, want %v", tt.symbol, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePair(%q): %v", tt.symbol, err)
			}
			if p.Base != tt.base || p.Quote != QuoteAsset || p.Symbol != tt.symbol {
				t.Errorf("ParsePair(%q) = %+v", tt.symbol, p)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	for _, asset := range []string{"USDC", "SOL", "BTC", "ETH"} {
		if !Supported(asset) {
			t.Errorf("Supported(%q) = false", asset)
		}
	}
	for _, asset := range []string{"DOGE", "usdc", ""} {
		if Supported(asset) {
			t.Errorf("Supported(%q) = true", asset)
		}
	}
}

func TestStartingBalances(t *testing.T) {
	seed := StartingBalances()

	if !seed[QuoteAsset].Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected 1000 %s, got %s", QuoteAsset, seed[QuoteAsset])
	}
	for _, base := range BaseAssets() {
		got, ok := seed[base]
		if !ok {
			t.Errorf("base asset %s missing from seed", base)
			continue
		}
		if !got.IsZero() {
			t.Errorf("base asset %s should start at zero, got %s", base, got)
		}
	}
	if len(seed) != len(BaseAssets())+1 {
		t.Errorf("unexpected seed size %d", len(seed))
	}
}
