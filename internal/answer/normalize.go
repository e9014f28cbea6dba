package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeOptions control how answers are normalised before comparison.
type NormalizeOptions struct {
	CaseSensitive    bool
	StripPunctuation bool
	StripDiacritics  bool
}

// Normalize applies NFC composition, trims and collapses whitespace, and then
// the case, punctuation and diacritic rules in opts.
func Normalize(s string, opts NormalizeOptions) string {
	s = norm.NFC.String(s)

	if opts.StripDiacritics {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if out, _, err := transform.String(t, s); err == nil {
			s = out
		}
	}
	if opts.StripPunctuation {
		s = runes.Remove(runes.In(unicode.P)).String(s)
	}
	if !opts.CaseSensitive {
		s = cases.Fold().String(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

// stripSpace removes every whitespace rune.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// stripPunct removes every punctuation rune.
func stripPunct(s string) string {
	return runes.Remove(runes.In(unicode.P)).String(s)
}
