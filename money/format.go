package money

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Format renders d with thousands grouping and exactly two decimals, prefixed by symbol.
// Symbols longer than one character are separated by a space ("Ks 1,000.00", "$1,000.00").
// Negative values put the sign before the symbol. Any symbol is accepted verbatim.
func Format(d decimal.Decimal, symbol string) string {
	d = Round(d)
	neg := d.IsNegative()
	digits := d.Abs().StringFixed(Scale)

	intPart, frac := digits, ""
	if dot := strings.IndexByte(digits, '.'); dot >= 0 {
		intPart, frac = digits[:dot], digits[dot:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	symbol = strings.TrimSpace(symbol)
	if symbol != "" {
		b.WriteString(symbol)
		if utf8.RuneCountInString(symbol) > 1 {
			b.WriteByte(' ')
		}
	}
	b.WriteString(groupThousands(intPart))
	b.WriteString(frac)
	return b.String()
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	head := len(s) % 3
	if head == 0 {
		head = 3
	}
	var b strings.Builder
	b.WriteString(s[:head])
	for i := head; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
