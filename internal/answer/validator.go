// Package answer grades free-text responses against an item's expected
// answers.
package answer

import (
	"errors"
	"fmt"
	"math"

	"github.com/abhisek/retain/internal/content"
)

// DefaultTypoThreshold is the minimum similarity the fuzzy strategy accepts.
const DefaultTypoThreshold = 0.8

// Scores awarded by the exact strategy.
const (
	CanonicalScore   = 1.0
	AlternativeScore = 0.95
)

// similarityEpsilon absorbs float error when comparing against the threshold.
const similarityEpsilon = 1e-9

var (
	ErrMisconfigured = errors.New("answer: validator misconfigured")
	ErrInvalidRule   = errors.New("answer: invalid rule")
)

// Strategy names which step of the chain produced a result.
type Strategy string

const (
	StrategyExact   Strategy = "exact"
	StrategyRule    Strategy = "rule"
	StrategyFuzzy   Strategy = "fuzzy"
	StrategyNoMatch Strategy = "no_match"
)

// Result is the outcome of grading one answer.
type Result struct {
	Correct     bool         `json:"correct"`
	Score       float64      `json:"score"`
	Feedback    string       `json:"feedback,omitempty"`
	Strategy    Strategy     `json:"strategy"`
	Rule        string       `json:"rule,omitempty"`
	Matched     string       `json:"matched,omitempty"`
	Similarity  float64      `json:"similarity"`
	Corrections []Correction `json:"corrections,omitempty"`
}

// Config configures a Validator for one content domain.
type Config struct {
	NormalizeOptions
	// TypoThreshold is the fuzzy acceptance threshold. Zero selects
	// DefaultTypoThreshold.
	TypoThreshold float64
	DisableFuzzy  bool
	Rules         []Rule
}

// Validator grades answers. It is immutable and safe for concurrent use.
type Validator struct {
	cfg Config
}

// New creates a Validator from cfg.
func New(cfg Config) (*Validator, error) {
	if cfg.TypoThreshold == 0 {
		cfg.TypoThreshold = DefaultTypoThreshold
	}
	if math.IsNaN(cfg.TypoThreshold) || cfg.TypoThreshold < 0 || cfg.TypoThreshold > 1 {
		return nil, fmt.Errorf("%w: typo threshold %v outside [0,1]", ErrMisconfigured, cfg.TypoThreshold)
	}
	for i, r := range cfg.Rules {
		if r.Match == nil {
			return nil, fmt.Errorf("%w: rule %d (%q) has no predicate", ErrInvalidRule, i, r.Name)
		}
	}
	cfg.Rules = append([]Rule(nil), cfg.Rules...)
	return &Validator{cfg: cfg}, nil
}

// Config returns the validator's configuration.
func (v *Validator) Config() Config {
	return v.cfg
}

// Validate grades userAnswer against item. The first matching strategy of
// exact, custom rules, fuzzy wins; otherwise the answer is incorrect. An error
// means a rule could not be evaluated.
func (v *Validator) Validate(userAnswer string, item content.Item) (Result, error) {
	opts := v.cfg.NormalizeOptions
	got := Normalize(userAnswer, opts)

	targets := make([]string, 0, 1+len(item.Alternatives))
	targets = append(targets, item.Answer)
	targets = append(targets, item.Alternatives...)

	// Exact.
	for i, target := range targets {
		if got != Normalize(target, opts) {
			continue
		}
		res := Result{
			Correct:    true,
			Score:      CanonicalScore,
			Strategy:   StrategyExact,
			Matched:    target,
			Similarity: 1,
		}
		if i > 0 {
			res.Score = AlternativeScore
			res.Feedback = fmt.Sprintf("Accepted. Also written %q.", item.Answer)
		}
		if c := diagnose(userAnswer, target); c != nil {
			res.Corrections = []Correction{*c}
		}
		return res, nil
	}

	// Custom rules.
	in := Input{
		Answer:       userAnswer,
		Normalized:   got,
		Expected:     item.Answer,
		Alternatives: item.Alternatives,
		Tags:         item.Tags,
	}
	for _, r := range v.cfg.Rules {
		ok, err := r.Match(in)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		res := Result{
			Correct:  r.Accept,
			Score:    r.score(),
			Feedback: r.Feedback,
			Strategy: StrategyRule,
			Rule:     r.Name,
			Matched:  item.Answer,
		}
		if !r.Accept && res.Feedback == "" {
			res.Feedback = expectedFeedback(item.Answer)
		}
		return res, nil
	}

	// Fuzzy.
	best, bestTarget := 0.0, item.Answer
	for _, target := range targets {
		if s := Similarity(got, Normalize(target, opts)); s > best {
			best, bestTarget = s, target
		}
	}
	if !v.cfg.DisableFuzzy && best+similarityEpsilon >= v.cfg.TypoThreshold {
		res := Result{
			Correct:    true,
			Score:      best,
			Strategy:   StrategyFuzzy,
			Matched:    bestTarget,
			Similarity: best,
		}
		if c := diagnose(userAnswer, bestTarget); c != nil {
			res.Corrections = []Correction{*c}
			res.Feedback = c.Note
		} else {
			res.Feedback = fmt.Sprintf("Close enough. The answer is %q.", bestTarget)
		}
		return res, nil
	}

	return Result{
		Correct:    false,
		Score:      best,
		Strategy:   StrategyNoMatch,
		Similarity: best,
		Feedback:   expectedFeedback(item.Answer),
	}, nil
}

func expectedFeedback(answer string) string {
	return fmt.Sprintf("Expected %q.", answer)
}
