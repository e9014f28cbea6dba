package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// EditKind classifies the difference between an answer and its target.
type EditKind string

const (
	EditCase          EditKind = "case"
	EditWhitespace    EditKind = "whitespace"
	EditPunctuation   EditKind = "punctuation"
	EditTransposition EditKind = "transposition"
	EditSubstitution  EditKind = "substitution"
	EditInsertion     EditKind = "insertion"
	EditOmission      EditKind = "omission"
)

// Correction describes a detected edit between what the learner typed and
// the answer it was matched against.
type Correction struct {
	Kind     EditKind `json:"kind"`
	Got      string   `json:"got"`
	Expected string   `json:"expected"`
	Note     string   `json:"note"`
}

// Similarity returns 1 - distance/maxLen over runes. Two empty strings are
// identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.Distance(a, b, nil)
	return 1 - float64(d)/float64(longest)
}

// diagnose classifies the edit between the raw learner answer and the target.
// Returns nil when no single edit type explains the difference.
func diagnose(got, expected string) *Correction {
	g, e := strings.TrimSpace(got), strings.TrimSpace(expected)
	if g == e {
		return nil
	}
	c := &Correction{Got: got, Expected: expected}

	switch {
	case strings.EqualFold(g, e):
		c.Kind = EditCase
		c.Note = fmt.Sprintf("check capitalisation: %q", expected)
	case stripSpace(g) == stripSpace(e):
		c.Kind = EditWhitespace
		c.Note = fmt.Sprintf("check spacing: %q", expected)
	case stripPunct(g) == stripPunct(e):
		c.Kind = EditPunctuation
		c.Note = fmt.Sprintf("check punctuation: %q", expected)
	default:
		kind, ok := singleEdit([]rune(g), []rune(e))
		if !ok {
			return nil
		}
		c.Kind = kind
		c.Note = fmt.Sprintf("did you mean %q?", expected)
	}
	return c
}

// singleEdit detects whether got and expected differ by exactly one
// transposition, substitution, insertion or omission.
func singleEdit(got, expected []rune) (EditKind, bool) {
	switch len(got) - len(expected) {
	case 0:
		var diff []int
		for i := range got {
			if got[i] != expected[i] {
				diff = append(diff, i)
			}
		}
		switch {
		case len(diff) == 1:
			return EditSubstitution, true
		case len(diff) == 2 && diff[1] == diff[0]+1 &&
			got[diff[0]] == expected[diff[1]] && got[diff[1]] == expected[diff[0]]:
			return EditTransposition, true
		}
	case 1:
		if dropsOne(got, expected) {
			return EditInsertion, true
		}
	case -1:
		if dropsOne(expected, got) {
			return EditOmission, true
		}
	}
	return "", false
}

// dropsOne reports whether removing one rune from long yields short.
func dropsOne(long, short []rune) bool {
	i := 0
	for i < len(short) && long[i] == short[i] {
		i++
	}
	return string(long[i+1:]) == string(short[i:])
}
