package answer

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Input is what a rule sees when it is evaluated.
type Input struct {
	Answer       string   // raw learner answer
	Normalized   string   // answer after normalisation
	Expected     string   // canonical answer
	Alternatives []string // accepted alternatives
	Tags         []string // item tags
}

// Predicate decides whether a rule applies to an answer.
type Predicate func(in Input) (bool, error)

// Rule is a custom grading rule checked before fuzzy matching. When Match
// returns true the rule's verdict is final.
type Rule struct {
	Name     string
	Match    Predicate
	Accept   bool
	Score    float64 // zero means 1 when accepting, 0 when rejecting
	Feedback string
}

func (r Rule) score() float64 {
	if r.Score > 0 {
		return r.Score
	}
	if r.Accept {
		return 1
	}
	return 0
}

// Rule kinds accepted in RuleSpec.Kind.
const (
	RuleKindCEL     = "cel"
	RuleKindNumeric = "numeric"
)

// RuleSpec is the declarative form of a rule.
type RuleSpec struct {
	Name     string  `koanf:"name" yaml:"name" validate:"required"`
	Kind     string  `koanf:"kind" yaml:"kind" validate:"omitempty,oneof=cel numeric"`
	Expr     string  `koanf:"expr" yaml:"expr"`
	Accept   bool    `koanf:"accept" yaml:"accept"`
	Score    float64 `koanf:"score" yaml:"score" validate:"gte=0,lte=1"`
	Feedback string  `koanf:"feedback" yaml:"feedback"`
}

// NumericRule accepts answers that are numerically equal to the canonical
// answer or one of its alternatives.
func NumericRule() Rule {
	return Rule{
		Name:   RuleKindNumeric,
		Accept: true,
		Match: func(in Input) (bool, error) {
			if NumericEqual(in.Answer, in.Expected) {
				return true, nil
			}
			for _, alt := range in.Alternatives {
				if NumericEqual(in.Answer, alt) {
					return true, nil
				}
			}
			return false, nil
		},
	}
}

var ruleEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("answer", cel.StringType),
		cel.Variable("normalized", cel.StringType),
		cel.Variable("expected", cel.StringType),
		cel.Variable("alternatives", cel.ListType(cel.StringType)),
		cel.Variable("tags", cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("answer: build CEL environment: %v", err))
	}
	ruleEnv = env
}

// CompileRule turns a RuleSpec into a Rule. CEL expressions must evaluate to
// a bool.
func CompileRule(spec RuleSpec) (Rule, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Rule{}, fmt.Errorf("%w: rule without a name", ErrInvalidRule)
	}
	if spec.Score < 0 || spec.Score > 1 {
		return Rule{}, fmt.Errorf("%w %q: score %v outside [0,1]", ErrInvalidRule, spec.Name, spec.Score)
	}

	switch spec.Kind {
	case RuleKindNumeric:
		r := NumericRule()
		r.Name = spec.Name
		r.Feedback = spec.Feedback
		r.Score = spec.Score
		return r, nil
	case "", RuleKindCEL:
	default:
		return Rule{}, fmt.Errorf("%w %q: unknown kind %q", ErrInvalidRule, spec.Name, spec.Kind)
	}

	ast, issues := ruleEnv.Compile(spec.Expr)
	if issues != nil && issues.Err() != nil {
		return Rule{}, fmt.Errorf("%w %q: %v", ErrInvalidRule, spec.Name, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Rule{}, fmt.Errorf("%w %q: expression yields %s, want bool", ErrInvalidRule, spec.Name, ast.OutputType())
	}
	prg, err := ruleEnv.Program(ast)
	if err != nil {
		return Rule{}, fmt.Errorf("%w %q: %v", ErrInvalidRule, spec.Name, err)
	}

	name := spec.Name
	return Rule{
		Name:     spec.Name,
		Accept:   spec.Accept,
		Score:    spec.Score,
		Feedback: spec.Feedback,
		Match: func(in Input) (bool, error) {
			out, _, err := prg.Eval(map[string]any{
				"answer":       in.Answer,
				"normalized":   in.Normalized,
				"expected":     in.Expected,
				"alternatives": nonNil(in.Alternatives),
				"tags":         nonNil(in.Tags),
			})
			if err != nil {
				return false, fmt.Errorf("%w: rule %q: %v", ErrMisconfigured, name, err)
			}
			matched, ok := out.Value().(bool)
			if !ok {
				return false, fmt.Errorf("%w: rule %q returned %T", ErrMisconfigured, name, out.Value())
			}
			return matched, nil
		},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
