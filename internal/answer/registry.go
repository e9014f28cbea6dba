package answer

import (
	"fmt"

	"github.com/abhisek/retain/internal/content"
)

// Settings is the declarative form of a Config, as loaded from configuration.
type Settings struct {
	CaseSensitive    bool       `koanf:"case_sensitive" yaml:"case_sensitive"`
	StripPunctuation bool       `koanf:"strip_punctuation" yaml:"strip_punctuation"`
	StripDiacritics  bool       `koanf:"strip_diacritics" yaml:"strip_diacritics"`
	TypoThreshold    float64    `koanf:"typo_threshold" yaml:"typo_threshold" validate:"gte=0,lte=1"`
	DisableFuzzy     bool       `koanf:"disable_fuzzy" yaml:"disable_fuzzy"`
	Rules            []RuleSpec `koanf:"rules" yaml:"rules" validate:"dive"`
}

// Compile builds a Config from s, compiling every rule.
func (s Settings) Compile() (Config, error) {
	cfg := Config{
		NormalizeOptions: NormalizeOptions{
			CaseSensitive:    s.CaseSensitive,
			StripPunctuation: s.StripPunctuation,
			StripDiacritics:  s.StripDiacritics,
		},
		TypoThreshold: s.TypoThreshold,
		DisableFuzzy:  s.DisableFuzzy,
	}
	for _, spec := range s.Rules {
		r, err := CompileRule(spec)
		if err != nil {
			return Config{}, err
		}
		cfg.Rules = append(cfg.Rules, r)
	}
	return cfg, nil
}

// RegistrySettings configures the default domain and per content-type
// overrides.
type RegistrySettings struct {
	Default Settings            `koanf:"default" yaml:"default"`
	Domains map[string]Settings `koanf:"domains" yaml:"domains" validate:"dive"`
}

// Registry maps content-type tags to validators. Unknown tags use the
// default validator.
type Registry struct {
	def     *Validator
	domains map[string]*Validator
}

// NewRegistry creates a registry with the given default validator.
func NewRegistry(def *Validator) *Registry {
	return &Registry{def: def, domains: make(map[string]*Validator)}
}

// Register binds a content type to a validator. Registration must finish
// before the registry is shared.
func (r *Registry) Register(contentType string, v *Validator) {
	r.domains[contentType] = v
}

// FromSettings compiles a registry from configuration.
func FromSettings(rs RegistrySettings) (*Registry, error) {
	def, err := buildValidator(rs.Default)
	if err != nil {
		return nil, fmt.Errorf("default domain: %w", err)
	}
	reg := NewRegistry(def)
	for tag, s := range rs.Domains {
		v, err := buildValidator(s)
		if err != nil {
			return nil, fmt.Errorf("domain %q: %w", tag, err)
		}
		reg.Register(tag, v)
	}
	return reg, nil
}

func buildValidator(s Settings) (*Validator, error) {
	cfg, err := s.Compile()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// For returns the validator for a content type.
func (r *Registry) For(contentType string) *Validator {
	if v, ok := r.domains[contentType]; ok {
		return v
	}
	return r.def
}

// Validate grades userAnswer with the validator registered for the item's
// content type.
func (r *Registry) Validate(userAnswer string, item content.Item) (Result, error) {
	v := r.For(item.Type())
	if v == nil {
		return Result{}, fmt.Errorf("%w: no validator for content type %q", ErrMisconfigured, item.Type())
	}
	return v.Validate(userAnswer, item)
}
