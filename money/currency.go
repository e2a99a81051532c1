package money

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// symbolCodes maps display symbols to their ISO 4217 code.
// Compiled in and never mutated after init.
var symbolCodes = map[string]string{
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₹":   "INR",
	"₦":   "NGN",
	"₩":   "KRW",
	"₱":   "PHP",
	"₽":   "RUB",
	"₺":   "TRY",
	"₴":   "UAH",
	"₫":   "VND",
	"฿":   "THB",
	"₪":   "ILS",
	"₵":   "GHS",
	"₡":   "CRC",
	"₲":   "PYG",
	"₸":   "KZT",
	"₼":   "AZN",
	"₾":   "GEL",
	"৳":   "BDT",
	"₮":   "MNT",
	"₭":   "LAK",
	"៛":   "KHR",
	"₨":   "PKR",
	"C$":  "CAD",
	"A$":  "AUD",
	"R$":  "BRL",
	"NZ$": "NZD",
	"HK$": "HKD",
	"S$":  "SGD",
	"E£":  "EGP",
	"Ks":  "MMK",
	"kr":  "SEK",
	"Rp":  "IDR",
	"RM":  "MYR",
	"zł":  "PLN",
	"Kč":  "CZK",
	"Ft":  "HUF",
	"KSh": "KES",
	"CHF": "CHF",
}

// commonSymbols are recognisable enough to be displayed as the glyph itself.
var commonSymbols = map[string]bool{
	"$": true, "€": true, "£": true, "¥": true, "₹": true, "₦": true,
}

var (
	codeSymbols map[string]string

	// mixed symbols ("C$", "E£") ordered longest first for replacement
	compoundSymbols []string

	// symbols made only of letters ("Ks", "kr"), matched case-insensitively
	letterSymbols map[string]bool

	knownCodes map[string]bool
)

func init() {
	codeSymbols = make(map[string]string, len(symbolCodes))
	letterSymbols = make(map[string]bool)
	knownCodes = make(map[string]bool, len(symbolCodes))
	for symbol, code := range symbolCodes {
		codeSymbols[code] = symbol
		knownCodes[code] = true
		switch {
		case allLetters(symbol):
			letterSymbols[strings.ToLower(symbol)] = true
		case utf8.RuneCountInString(symbol) > 1:
			compoundSymbols = append(compoundSymbols, symbol)
		}
	}
	sort.Slice(compoundSymbols, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(compoundSymbols[i]), utf8.RuneCountInString(compoundSymbols[j])
		if li != lj {
			return li > lj
		}
		return compoundSymbols[i] < compoundSymbols[j]
	})
}

func allLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// CodeForSymbol returns the ISO code of a catalog symbol.
// A three-letter uppercase input is treated as a code already.
func CodeForSymbol(symbol string) (string, bool) {
	symbol = strings.TrimSpace(symbol)
	if code, ok := symbolCodes[symbol]; ok {
		return code, true
	}
	if isCurrencyCode(symbol) {
		return symbol, true
	}
	return "", false
}

// SymbolForCode is the reverse lookup of CodeForSymbol.
func SymbolForCode(code string) (string, bool) {
	symbol, ok := codeSymbols[strings.ToUpper(strings.TrimSpace(code))]
	return symbol, ok
}

// DisplayCurrency picks the label shown next to amounts: common glyphs as-is,
// rare catalog symbols by code, three-letter codes and unknown symbols verbatim.
func DisplayCurrency(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || commonSymbols[symbol] || isCurrencyCode(symbol) {
		return symbol
	}
	if code, ok := symbolCodes[symbol]; ok {
		return code
	}
	return symbol
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
