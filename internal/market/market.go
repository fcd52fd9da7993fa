// Package market handles trading pair parsing and the registry of supported
// assets, including the seeded starting balances granted to new users.
package market

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// QuoteAsset is the settlement currency every pair trades against.
const QuoteAsset = "USDC"

var (
	ErrInvalidPair     = errors.New("market: invalid pair format")
	ErrUnsupportedPair = errors.New("market: unsupported pair")
)

// pairRegex matches: {BASE}-{QUOTE}
// Example: SOL-USDC
var pairRegex = regexp.MustCompile(`^([A-Z0-9]{2,10})-([A-Z0-9]{2,10})$`)

// baseAssets is the fixed set of tradable base assets.
var baseAssets = map[string]bool{
	"SOL": true,
	"BTC": true,
	"ETH": true,
}

// Pair is a parsed trading pair.
type Pair struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

// ParsePair parses and validates a pair symbol string.
// Format: {BASE}-{QUOTE}, quoted in USDC only.
func ParsePair(symbol string) (*Pair, error) {
	matches := pairRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected BASE-QUOTE)", ErrInvalidPair, symbol)
	}

	base := matches[1]
	quote := matches[2]

	if quote != QuoteAsset {
		return nil, fmt.Errorf("%w: quote must be %s, got %s", ErrUnsupportedPair, QuoteAsset, quote)
	}
	if !baseAssets[base] {
		return nil, fmt.Errorf("%w: unknown base asset %s", ErrUnsupportedPair, base)
	}

	return &Pair{Symbol: symbol, Base: base, Quote: quote}, nil
}

// Supported reports whether an asset is known to the platform, either as a
// base asset or as the quote currency.
func Supported(asset string) bool {
	return asset == QuoteAsset || baseAssets[asset]
}

// BaseAssets returns the tradable base assets in no particular order.
func BaseAssets() []string {
	assets := make([]string, 0, len(baseAssets))
	for a := range baseAssets {
		assets = append(assets, a)
	}
	return assets
}

// StartingBalances is the fixed seed table applied once per user by the
// portfolio initializer. Base assets start empty; the quote currency is
// credited with paper funds.
func StartingBalances() map[string]decimal.Decimal {
	seed := map[string]decimal.Decimal{
		QuoteAsset: decimal.NewFromInt(1000),
	}
	for a := range baseAssets {
		seed[a] = decimal.Zero
	}
	return seed
}
