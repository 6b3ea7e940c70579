// Package symbol parses and validates exchange instrument identifiers such as
// BTCUSDT into their base and quote assets.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches Binance spot symbols: upper-case letters and digits.
// Example: BTCUSDT, 1INCHUSDT
var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)

// Quote assets recognised when splitting a symbol, longest first so that
// FDUSD wins over USD-style suffixes.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

var (
	ErrInvalidSymbol = errors.New("symbol: invalid symbol format")
	ErrUnknownQuote  = errors.New("symbol: unrecognised quote asset")
)

// Symbol is a parsed trading pair.
type Symbol struct {
	Name  string `json:"name"`
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Normalize upper-cases and trims a raw symbol string.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Validate checks the syntax of a symbol without splitting it.
func Validate(raw string) error {
	if !symbolRegex.MatchString(Normalize(raw)) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return nil
}

// Parse validates a symbol and splits it into base and quote assets.
func Parse(raw string) (*Symbol, error) {
	name := Normalize(raw)
	if err := Validate(name); err != nil {
		return nil, err
	}
	for _, q := range quoteAssets {
		if strings.HasSuffix(name, q) && len(name) > len(q) {
			return &Symbol{Name: name, Base: strings.TrimSuffix(name, q), Quote: q}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownQuote, name)
}
