// Package money holds the fixed-point amount helpers shared by the ledger:
// lenient parsing of user-entered numbers, rounding, range checks and display formatting.
package money

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits persisted for every amount.
const Scale = 2

var (
	// MaxMagnitude bounds store-bound values on both sides.
	MaxMagnitude = decimal.New(1, 9)

	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
	million  = decimal.NewFromInt(1000000)

	numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

	noiseWords = map[string]bool{
		"each":  true,
		"ea":    true,
		"pc":    true,
		"pcs":   true,
		"unit":  true,
		"units": true,
	}

	spaceStripper = strings.NewReplacer(",", "", " ", "", "\t", "", "\u00a0", "", "\u202f", "")
)

type parsed struct {
	value   decimal.Decimal
	percent bool
}

// Parse coerces free text such as "$1,200", "(Ks 3.5k)", "12 pcs" or "15%" into a decimal.
// A trailing k or m multiplies by a thousand or a million; a trailing % divides by 100;
// parentheses negate. Failures wrap utils.ErrBadNumber.
func Parse(input string) (decimal.Decimal, error) {
	p, err := parse(input)
	if err != nil {
		return decimal.Zero, err
	}
	if p.percent {
		return p.value.Div(hundred), nil
	}
	return p.value, nil
}

// ParsePercentOf resolves a percentage input against base ("10%" of 250 is 25).
// Inputs without % are returned as absolute amounts.
func ParsePercentOf(input string, base decimal.Decimal) (decimal.Decimal, error) {
	p, err := parse(input)
	if err != nil {
		return decimal.Zero, err
	}
	v := p.value
	if p.percent {
		v = base.Mul(v).Div(hundred)
	}
	if err := CheckRange(v); err != nil {
		return decimal.Zero, err
	}
	return Round(v), nil
}

// ParseAmount is Parse for values headed to the store: range-checked and rounded to Scale.
func ParseAmount(input string) (decimal.Decimal, error) {
	v, err := Parse(input)
	if err != nil {
		return decimal.Zero, err
	}
	if err := CheckRange(v); err != nil {
		return decimal.Zero, err
	}
	return Round(v), nil
}

// Round applies half-even rounding to Scale digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// CheckRange rejects magnitudes above MaxMagnitude. The error matches both
// utils.ErrOutOfRange and utils.ErrBadNumber.
func CheckRange(d decimal.Decimal) error {
	if d.Abs().GreaterThan(MaxMagnitude) {
		return fmt.Errorf("%w: %w: |%s| exceeds %s", utils.ErrOutOfRange, utils.ErrBadNumber, d.String(), MaxMagnitude.String())
	}
	return nil
}

func badNumber(input string, reason string) error {
	return fmt.Errorf("%w: %q: %s", utils.ErrBadNumber, input, reason)
}

func parse(input string) (parsed, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return parsed{}, badNumber(input, "empty")
	}

	negate := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negate = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = stripSymbols(s)
	s, multiplier, err := stripWords(input, s)
	if err != nil {
		return parsed{}, err
	}

	s = spaceStripper.Replace(s)
	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSuffix(s, "%")
	}
	s = collapseDots(s)

	if negate && (strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+")) {
		return parsed{}, badNumber(input, "sign inside parentheses")
	}
	if !numberPattern.MatchString(s) {
		return parsed{}, badNumber(input, "not a decimal")
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "+"), ".")

	v, err := decimal.NewFromString(s)
	if err != nil {
		return parsed{}, badNumber(input, err.Error())
	}
	if !multiplier.IsZero() {
		v = v.Mul(multiplier)
	}
	if negate {
		v = v.Neg()
	}
	return parsed{value: v, percent: percent}, nil
}

// stripSymbols blanks out catalog symbols and any other currency glyph.
func stripSymbols(s string) string {
	for _, symbol := range compoundSymbols {
		s = strings.ReplaceAll(s, symbol, " ")
	}
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) {
			return ' '
		}
		return r
	}, s)
}

// stripWords removes codes, letter symbols and noise words, and extracts a k/m suffix.
// Any other word makes the input unparseable.
func stripWords(input string, s string) (string, decimal.Decimal, error) {
	runes := []rune(s)
	var b strings.Builder
	var multiplier decimal.Decimal

	for i := 0; i < len(runes); {
		if !unicode.IsLetter(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsLetter(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		lower := strings.ToLower(word)

		switch {
		case noiseWords[lower], letterSymbols[lower], knownCodes[strings.ToUpper(word)]:
			b.WriteRune(' ')
		case (lower == "k" || lower == "m") && multiplier.IsZero() &&
			endsWithDigit(b.String()) && !containsDigit(string(runes[j:])):
			if lower == "k" {
				multiplier = thousand
			} else {
				multiplier = million
			}
		default:
			return "", decimal.Zero, badNumber(input, fmt.Sprintf("unexpected %q", word))
		}
		i = j
	}
	return b.String(), multiplier, nil
}

func endsWithDigit(s string) bool {
	s = strings.TrimRight(s, " \t")
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return (last >= '0' && last <= '9') || last == '.'
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// collapseDots keeps only the last decimal point: "1.234.56" reads as 1234.56.
func collapseDots(s string) string {
	last := strings.LastIndex(s, ".")
	if last < 0 {
		return s
	}
	return strings.ReplaceAll(s[:last], ".", "") + s[last:]
}
