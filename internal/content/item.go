package content

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
)

// DefaultContentType is used for items that do not carry a content-type tag.
const DefaultContentType = "generic"

// Mode is a presentation mode for an item.
type Mode string

const (
	ModeRecognition Mode = "recognition"
	ModeRecall      Mode = "recall"
	ModeListening   Mode = "listening"
)

// Valid reports whether m is a known presentation mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRecognition, ModeRecall, ModeListening:
		return true
	}
	return false
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown presentation mode %q", s)
	}
	return m, nil
}

// Difficulty bands used by per-difficulty statistics.
const (
	BandEasy   = "easy"
	BandMedium = "medium"
	BandHard   = "hard"
)

// ErrInvalidItem is returned when an item fails validation.
var ErrInvalidItem = errors.New("content: invalid item")

// Item is a reviewable unit of content. Items are supplied by a content
// adapter and are treated as immutable by the engine.
type Item struct {
	ID            string   `json:"id" validate:"required"`
	ContentType   string   `json:"content_type,omitempty"`
	Prompt        string   `json:"prompt"`
	Answer        string   `json:"answer" validate:"required"`
	Alternatives  []string `json:"alternatives,omitempty"`
	Difficulty    float64  `json:"difficulty" validate:"gte=0,lte=1"`
	Tags          []string `json:"tags,omitempty"`
	Modes         []Mode   `json:"modes,omitempty" validate:"dive,oneof=recognition recall listening"`
	PreferredMode Mode     `json:"preferred_mode,omitempty" validate:"omitempty,oneof=recognition recall listening"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func itemValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the item's required fields and ranges.
func (it Item) Validate() error {
	if err := itemValidator().Struct(it); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidItem, it.ID, err)
	}
	return nil
}

// Type returns the content-type tag, falling back to DefaultContentType.
func (it Item) Type() string {
	if it.ContentType == "" {
		return DefaultContentType
	}
	return it.ContentType
}

// Supports reports whether the item can be presented in mode m.
// Items that declare no modes support every mode.
func (it Item) Supports(m Mode) bool {
	if len(it.Modes) == 0 {
		return true
	}
	return slices.Contains(it.Modes, m)
}

// Band returns the difficulty band of the item.
func (it Item) Band() string {
	return DifficultyBand(it.Difficulty)
}

// DifficultyBand maps a difficulty estimate in [0,1] to a band name.
func DifficultyBand(d float64) string {
	switch {
	case d < 0.34:
		return BandEasy
	case d < 0.67:
		return BandMedium
	default:
		return BandHard
	}
}
