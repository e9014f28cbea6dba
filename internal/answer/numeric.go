package answer

import (
	"math/big"
	"strings"
)

// maxNumberLen bounds the inputs parsed as exact rationals.
const maxNumberLen = 64

// NumericEqual reports whether two answers denote the same rational number.
// Integers, decimals and fractions compare by value: "007" matches "7",
// "3.50" matches "3.5" and "0.5" matches both "1/2" and "2/4". Non-numeric
// input never matches.
func NumericEqual(got, expected string) bool {
	g, ok := parseRat(got)
	if !ok {
		return false
	}
	e, ok := parseRat(expected)
	if !ok {
		return false
	}
	return g.Cmp(e) == 0
}

// parseRat reads a signed decimal, or a fraction whose parts are signed
// decimals. Exponents and base prefixes are refused.
func parseRat(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxNumberLen || strings.IndexFunc(s, notNumeric) >= 0 {
		return nil, false
	}
	num, den, isFrac := strings.Cut(s, "/")
	r, ok := new(big.Rat).SetString(strings.TrimSpace(num))
	if !ok {
		return nil, false
	}
	if !isFrac {
		return r, true
	}
	if strings.Contains(den, "/") {
		return nil, false
	}
	d, ok := new(big.Rat).SetString(strings.TrimSpace(den))
	if !ok || d.Sign() == 0 {
		return nil, false
	}
	return r.Quo(r, d), true
}

func notNumeric(r rune) bool {
	return !strings.ContainsRune("0123456789+-./ ", r)
}
