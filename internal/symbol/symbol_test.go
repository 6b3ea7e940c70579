package symbol

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	s, err := Parse("BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Base != "BTC" {
		t.Errorf("expected base=BTC, got %s", s.Base)
	}
	if s.Quote != "USDT" {
		t.Errorf("expected quote=USDT, got %s", s.Quote)
	}
}

func TestParse_Normalizes(t *testing.T) {
	s, err := Parse("  ethusdt ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name != "ETHUSDT" {
		t.Errorf("expected ETHUSDT, got %s", s.Name)
	}
}

func TestParse_AllQuotes(t *testing.T) {
	cases := map[string]string{
		"ETHBTC":    "BTC",
		"SOLFDUSD":  "FDUSD",
		"ADAUSDC":   "USDC",
		"XRPBNB":    "BNB",
		"1INCHUSDT": "USDT",
	}
	for raw, quote := range cases {
		s, err := Parse(raw)
		if err != nil {
			t.Errorf("unexpected error for %s: %v", raw, err)
			continue
		}
		if s.Quote != quote {
			t.Errorf("%s: expected quote=%s, got %s", raw, quote, s.Quote)
		}
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	invalid := []string{"", "BTC", "BTC-USDT", "BTC/USDT", "THISISAVERYLONGSYMBOLNAME"}
	for _, raw := range invalid {
		if _, err := Parse(raw); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("expected ErrInvalidSymbol for %q, got %v", raw, err)
		}
	}
}

func TestParse_UnknownQuote(t *testing.T) {
	_, err := Parse("ABCDEFG")
	if !errors.Is(err, ErrUnknownQuote) {
		t.Errorf("expected ErrUnknownQuote, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("ABCDEFG"); err != nil {
		t.Errorf("syntactically valid symbol should pass Validate, got %v", err)
	}
	if err := Validate("bad symbol"); err == nil {
		t.Error("expected error for symbol with space")
	}
}
