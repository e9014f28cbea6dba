package spacedrep

import (
	"errors"
	"fmt"
	"math"
)

// Ease factor bounds.
const (
	DefaultEase = 2.5
	MinEase     = 1.3
	MaxEase     = 2.5
)

// Learning steps, in days.
const (
	RelearnIntervalDays  = 10.0 / (24 * 60) // 10 minutes after a miss
	FirstStepDays        = 30.0 / (24 * 60) // 30 minutes after the first hit
	GraduateIntervalDays = 1.0              // second consecutive hit graduates to review
)

// Sentinel errors. Invalid input is the caller's bug and is never clamped away.
var (
	ErrInvalidResponse = errors.New("spacedrep: invalid response")
	ErrInvalidState    = errors.New("spacedrep: invalid schedule state")
	ErrInvalidInterval = errors.New("spacedrep: computed interval is not a finite non-negative value")
	ErrInvalidParams   = errors.New("spacedrep: parameters out of bounds")
)

// Params tunes the scheduling algorithm. Zero values select defaults in
// NewScheduler.
type Params struct {
	LeechThreshold      int     `koanf:"leech_threshold" validate:"gte=0"`
	MaxIntervalDays     float64 `koanf:"max_interval_days" validate:"gte=0"`
	MasteryIntervalDays float64 `koanf:"mastery_interval_days" validate:"gte=0"`
	MasterySuccessRate  float64 `koanf:"mastery_success_rate" validate:"gte=0,lte=1"`

	// SuccessRateAlpha weights the latest outcome in the rolling success rate.
	SuccessRateAlpha float64 `koanf:"success_rate_alpha" validate:"gte=0,lte=1"`

	// MaxEaseStep is the largest ease change a single correct answer can cause.
	MaxEaseStep float64 `koanf:"max_ease_step" validate:"gte=0"`
	// LapseEasePenalty is subtracted from the ease on every miss.
	LapseEasePenalty float64 `koanf:"lapse_ease_penalty" validate:"gte=0"`

	// FastResponseMs and SlowResponseMs bound the response-time scale.
	FastResponseMs uint32 `koanf:"fast_response_ms"`
	SlowResponseMs uint32 `koanf:"slow_response_ms"`
}

// DefaultParams returns the default scheduling parameters.
func DefaultParams() Params {
	return Params{
		LeechThreshold:      8,
		MaxIntervalDays:     365,
		MasteryIntervalDays: 21,
		MasterySuccessRate:  0.9,
		SuccessRateAlpha:    0.3,
		MaxEaseStep:         0.15,
		LapseEasePenalty:    0.2,
		FastResponseMs:      2000,
		SlowResponseMs:      15000,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.LeechThreshold == 0 {
		p.LeechThreshold = d.LeechThreshold
	}
	if p.MaxIntervalDays == 0 {
		p.MaxIntervalDays = d.MaxIntervalDays
	}
	if p.MasteryIntervalDays == 0 {
		p.MasteryIntervalDays = d.MasteryIntervalDays
	}
	if p.MasterySuccessRate == 0 {
		p.MasterySuccessRate = d.MasterySuccessRate
	}
	if p.SuccessRateAlpha == 0 {
		p.SuccessRateAlpha = d.SuccessRateAlpha
	}
	if p.MaxEaseStep == 0 {
		p.MaxEaseStep = d.MaxEaseStep
	}
	if p.LapseEasePenalty == 0 {
		p.LapseEasePenalty = d.LapseEasePenalty
	}
	if p.FastResponseMs == 0 {
		p.FastResponseMs = d.FastResponseMs
	}
	if p.SlowResponseMs == 0 {
		p.SlowResponseMs = d.SlowResponseMs
	}
	return p
}

func (p Params) validate() error {
	switch {
	case p.LeechThreshold < 1:
		return fmt.Errorf("%w: leech threshold %d", ErrInvalidParams, p.LeechThreshold)
	case p.MaxIntervalDays < GraduateIntervalDays || math.IsInf(p.MaxIntervalDays, 0):
		return fmt.Errorf("%w: max interval %v", ErrInvalidParams, p.MaxIntervalDays)
	case p.MasterySuccessRate <= 0 || p.MasterySuccessRate > 1:
		return fmt.Errorf("%w: mastery success rate %v", ErrInvalidParams, p.MasterySuccessRate)
	case p.SuccessRateAlpha <= 0 || p.SuccessRateAlpha > 1:
		return fmt.Errorf("%w: success rate alpha %v", ErrInvalidParams, p.SuccessRateAlpha)
	case p.FastResponseMs >= p.SlowResponseMs:
		return fmt.Errorf("%w: fast response %dms must be below slow response %dms",
			ErrInvalidParams, p.FastResponseMs, p.SlowResponseMs)
	}
	return nil
}
