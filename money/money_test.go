package money

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
)

func TestParse_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"MMK 20,000", "20000"},
		{"MMK -20,000", "-20000"},
		{"  ks 1,234.50  ", "1234.5"},
		{"$1,200", "1200"},
		{"-$1,000", "-1000"},
		{"₦ 3,500.25", "3500.25"},
		{"C$12", "12"},
		{"1,000 USD", "1000"},
		{"2.5k", "2500"},
		{"3M", "3000000"},
		{"1.5 k each", "1500"},
		{"(150.00)", "-150"},
		{"(Ks 3.5k)", "-3500"},
		{"12 pcs", "12"},
		{"4 units", "4"},
		{"15%", "0.15"},
		{"1.234.56", "1234.56"},
		{".5", "0.5"},
		{"+7", "7"},
		{"5.", "5"},
	}
	for _, tc := range cases {
		d, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("Parse(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "12abc", "1e5", "5k5", "k", "$", "(-5)", "1-2", "--3"} {
		if _, err := Parse(in); !errors.Is(err, utils.ErrBadNumber) {
			t.Fatalf("Parse(%q) expected ErrBadNumber, got %v", in, err)
		}
	}
}

func TestParsePercentOf(t *testing.T) {
	base := decimal.NewFromInt(250)
	cases := []struct {
		in       string
		expected string
	}{
		{"10%", "25"},
		{"12.5 %", "31.25"},
		{"40", "40"},
		{"$7.125", "7.12"},
	}
	for _, tc := range cases {
		d, err := ParsePercentOf(tc.in, base)
		if err != nil {
			t.Fatalf("ParsePercentOf(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParsePercentOf(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RangeAndRounding(t *testing.T) {
	d, err := ParseAmount("1,000,000,000")
	if err != nil {
		t.Fatalf("upper bound should be accepted: %v", err)
	}
	if !d.Equal(MaxMagnitude) {
		t.Fatalf("expected %s, got %s", MaxMagnitude, d)
	}

	for _, in := range []string{"1,000,000,000.01", "2000m", "-1.5k k"} {
		_, err := ParseAmount(in)
		if err == nil {
			t.Fatalf("ParseAmount(%q) expected error", in)
		}
		if !errors.Is(err, utils.ErrBadNumber) {
			t.Fatalf("ParseAmount(%q) expected ErrBadNumber, got %v", in, err)
		}
	}
	if _, err := ParseAmount("2000m"); !errors.Is(err, utils.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if got := utils.KindOf(CheckRange(decimal.NewFromInt(-2000000000))); got != "OutOfRange" {
		t.Fatalf("expected OutOfRange kind, got %s", got)
	}

	d, err = ParseAmount("2.345")
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "2.34" {
		t.Fatalf("expected half-even 2.34, got %s", d)
	}
	d, _ = ParseAmount("2.355")
	if d.String() != "2.36" {
		t.Fatalf("expected half-even 2.36, got %s", d)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		amount   string
		symbol   string
		expected string
	}{
		{"1234567.891", "$", "$1,234,567.89"},
		{"1050", "₦", "₦1,050.00"},
		{"1000", "Ks", "Ks 1,000.00"},
		{"999.5", "USD", "USD 999.50"},
		{"-5", "$", "-$5.00"},
		{"0", "€", "€0.00"},
		{"123", "", "123.00"},
		{"100000", "🪙", "🪙100,000.00"},
		{"2.345", "£", "£2.34"},
	}
	for _, tc := range cases {
		got := Format(decimal.RequireFromString(tc.amount), tc.symbol)
		if got != tc.expected {
			t.Fatalf("Format(%s, %q) expected %q, got %q", tc.amount, tc.symbol, tc.expected, got)
		}
	}
}

func TestCurrencyCatalog(t *testing.T) {
	for symbol, code := range map[string]string{"₦": "NGN", "$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY", "₹": "INR", "Ks": "MMK"} {
		got, ok := CodeForSymbol(symbol)
		if !ok || got != code {
			t.Fatalf("CodeForSymbol(%q) expected %s, got %s (%v)", symbol, code, got, ok)
		}
		back, ok := SymbolForCode(code)
		if !ok || back != symbol {
			t.Fatalf("SymbolForCode(%q) expected %s, got %s", code, symbol, back)
		}
	}
	if code, ok := CodeForSymbol("XOF"); !ok || code != "XOF" {
		t.Fatalf("three-letter codes pass through, got %s %v", code, ok)
	}
	if _, ok := CodeForSymbol("¤¤"); ok {
		t.Fatalf("unknown symbol should not resolve")
	}

	cases := map[string]string{
		"$":   "$",
		"₦":   "₦",
		"₮":   "MNT",
		"Ks":  "MMK",
		"XOF": "XOF",
		"¤¤":  "¤¤",
	}
	for symbol, expected := range cases {
		if got := DisplayCurrency(symbol); got != expected {
			t.Fatalf("DisplayCurrency(%q) expected %q, got %q", symbol, expected, got)
		}
	}
}
