package answer

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/abhisek/retain/internal/content"
)

func mustValidator(t *testing.T, cfg Config) *Validator {
	t.Helper()
	v, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestValidate_Exact(t *testing.T) {
	v := mustValidator(t, Config{})
	item := content.Item{ID: "kana-shi", Answer: "shi", Alternatives: []string{"si"}}

	tests := []struct {
		input     string
		wantScore float64
	}{
		{"shi", 1.0},
		{"  SHI ", 1.0},
		{"si", 0.95},
	}
	for _, tt := range tests {
		res, err := v.Validate(tt.input, item)
		if err != nil {
			t.Fatalf("Validate(%q): %v", tt.input, err)
		}
		if !res.Correct || res.Strategy != StrategyExact || res.Score != tt.wantScore {
			t.Errorf("Validate(%q) = %+v, want exact with score %v", tt.input, res, tt.wantScore)
		}
	}
}

func TestValidate_ExactCaseNote(t *testing.T) {
	v := mustValidator(t, Config{})
	res, err := v.Validate("tokyo", content.Item{ID: "geo", Answer: "Tokyo"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 1 || len(res.Corrections) != 1 || res.Corrections[0].Kind != EditCase {
		t.Errorf("got %+v, want exact match with a case note", res)
	}
}

func TestValidate_PrimaryAnswerAlwaysScoresOne(t *testing.T) {
	items := []content.Item{
		{ID: "1", Answer: "shi", Alternatives: []string{"SHI"}},
		{ID: "2", Answer: "São Paulo"},
		{ID: "3", Answer: "  spaced   out  "},
		{ID: "4", Answer: "rock 'n' roll!"},
		{ID: "5", Answer: "東京"},
	}
	configs := []Config{
		{},
		{NormalizeOptions: NormalizeOptions{CaseSensitive: true}},
		{NormalizeOptions: NormalizeOptions{StripPunctuation: true, StripDiacritics: true}},
	}
	for _, cfg := range configs {
		v := mustValidator(t, cfg)
		for _, item := range items {
			res, err := v.Validate(item.Answer, item)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Correct || res.Score != 1.0 {
				t.Errorf("cfg %+v: Validate(%q) = %+v, want correct with 1.0", cfg.NormalizeOptions, item.Answer, res)
			}
		}
	}
}

func TestValidate_FuzzyTypo(t *testing.T) {
	v := mustValidator(t, Config{})
	res, err := v.Validate("Tokio", content.Item{ID: "geo", Answer: "Tokyo"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Strategy != StrategyFuzzy {
		t.Fatalf("got %+v, want fuzzy acceptance", res)
	}
	if !approx(res.Score, 0.8) {
		t.Errorf("Score = %v, want 0.8", res.Score)
	}
	if len(res.Corrections) != 1 || res.Corrections[0].Kind != EditSubstitution {
		t.Errorf("Corrections = %+v, want one substitution", res.Corrections)
	}
	if !strings.Contains(res.Feedback, "Tokyo") {
		t.Errorf("Feedback = %q, want the expected answer mentioned", res.Feedback)
	}
}

func TestValidate_Diagnoses(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		input  string
		answer string
		want   EditKind
	}{
		{"case only", Config{NormalizeOptions: NormalizeOptions{CaseSensitive: true}}, "tokyo", "Tokyo", EditCase},
		{"whitespace only", Config{}, "to kyo", "tokyo", EditWhitespace},
		{"transposition", Config{}, "adminsitration", "administration", EditTransposition},
		{"omission", Config{}, "accomodation", "accommodation", EditOmission},
		{"insertion", Config{}, "tokyoo", "tokyo", EditInsertion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustValidator(t, tt.cfg)
			res, err := v.Validate(tt.input, content.Item{ID: "x", Answer: tt.answer})
			if err != nil {
				t.Fatal(err)
			}
			if !res.Correct {
				t.Fatalf("got %+v, want accepted", res)
			}
			if len(res.Corrections) != 1 || res.Corrections[0].Kind != tt.want {
				t.Errorf("Corrections = %+v, want %q", res.Corrections, tt.want)
			}
		})
	}
}

func TestValidate_NoMatch(t *testing.T) {
	v := mustValidator(t, Config{})
	res, err := v.Validate("Osaka", content.Item{ID: "geo", Answer: "Tokyo"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct || res.Strategy != StrategyNoMatch {
		t.Fatalf("got %+v, want no match", res)
	}
	if res.Score >= DefaultTypoThreshold || res.Score != res.Similarity {
		t.Errorf("Score = %v Similarity = %v", res.Score, res.Similarity)
	}
	if !strings.Contains(res.Feedback, "Tokyo") {
		t.Errorf("Feedback = %q, want the expected answer", res.Feedback)
	}
}

func TestValidate_EmptyAnswer(t *testing.T) {
	v := mustValidator(t, Config{})
	res, err := v.Validate("   ", content.Item{ID: "geo", Answer: "Tokyo"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct || res.Score != 0 {
		t.Errorf("got %+v, want incorrect with score 0", res)
	}
}

func TestValidate_DisableFuzzy(t *testing.T) {
	v := mustValidator(t, Config{DisableFuzzy: true})
	res, err := v.Validate("Tokio", content.Item{ID: "geo", Answer: "Tokyo"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct {
		t.Errorf("got %+v, want rejection with fuzzy disabled", res)
	}
}

func TestValidate_NormalizeOptions(t *testing.T) {
	v := mustValidator(t, Config{NormalizeOptions: NormalizeOptions{StripPunctuation: true, StripDiacritics: true}})
	tests := []struct{ input, answer string }{
		{"Sao Paulo", "São Paulo"},
		{"new york", "New York."},
		{"cafe", "café"},
	}
	for _, tt := range tests {
		res, err := v.Validate(tt.input, content.Item{ID: "x", Answer: tt.answer})
		if err != nil {
			t.Fatal(err)
		}
		if res.Strategy != StrategyExact {
			t.Errorf("Validate(%q, %q) = %+v, want exact", tt.input, tt.answer, res)
		}
	}
}

func TestValidate_RulesRunBeforeFuzzy(t *testing.T) {
	reject, err := CompileRule(RuleSpec{
		Name:     "old-capital",
		Expr:     `normalized == "kyoto"`,
		Feedback: "Kyoto was the capital until 1868.",
	})
	if err != nil {
		t.Fatal(err)
	}
	accept, err := CompileRule(RuleSpec{
		Name:   "kanji",
		Expr:   `"kanji" in tags && answer == "東京"`,
		Accept: true,
		Score:  0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	v := mustValidator(t, Config{Rules: []Rule{reject, accept}})
	item := content.Item{ID: "geo", Answer: "Tokyo", Tags: []string{"geo", "kanji"}}

	res, err := v.Validate("Kyoto", item)
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct || res.Rule != "old-capital" || res.Feedback != "Kyoto was the capital until 1868." {
		t.Errorf("got %+v, want rejection by old-capital", res)
	}

	res, err = v.Validate("東京", item)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Score != 0.9 || res.Strategy != StrategyRule {
		t.Errorf("got %+v, want rule acceptance with 0.9", res)
	}
}

func TestValidate_NumericRule(t *testing.T) {
	v := mustValidator(t, Config{Rules: []Rule{NumericRule()}, DisableFuzzy: true})
	item := content.Item{ID: "frac", Answer: "1/2"}
	tests := []struct {
		input string
		want  bool
	}{
		{"1/2", true},
		{"2/4", true},
		{"-2/-4", true},
		{"3/4", false},
		{"abc", false},
	}
	for _, tt := range tests {
		res, err := v.Validate(tt.input, item)
		if err != nil {
			t.Fatal(err)
		}
		if res.Correct != tt.want {
			t.Errorf("Validate(%q) correct = %v, want %v", tt.input, res.Correct, tt.want)
		}
	}
}

func TestValidate_RuleErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	v := mustValidator(t, Config{Rules: []Rule{{
		Name:  "broken",
		Match: func(Input) (bool, error) { return false, boom },
	}}})
	_, err := v.Validate("x", content.Item{ID: "x", Answer: "y"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}

func TestValidate_CELRuntimeError(t *testing.T) {
	r, err := CompileRule(RuleSpec{Name: "oob", Expr: `alternatives[3] == "x"`})
	if err != nil {
		t.Fatal(err)
	}
	v := mustValidator(t, Config{Rules: []Rule{r}})
	_, err = v.Validate("x", content.Item{ID: "x", Answer: "y"})
	if !errors.Is(err, ErrMisconfigured) {
		t.Errorf("error = %v, want ErrMisconfigured", err)
	}
}

func TestNew_Misconfigured(t *testing.T) {
	if _, err := New(Config{TypoThreshold: 1.5}); !errors.Is(err, ErrMisconfigured) {
		t.Errorf("threshold 1.5: error = %v", err)
	}
	if _, err := New(Config{TypoThreshold: math.NaN()}); !errors.Is(err, ErrMisconfigured) {
		t.Errorf("threshold NaN: error = %v", err)
	}
	if _, err := New(Config{Rules: []Rule{{Name: "empty"}}}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("nil predicate: error = %v", err)
	}
}
