package offline

import (
	"math"
	"time"
)

// Config tunes the replay loop.
type Config struct {
	// MaxRetries is the number of failed attempts after which a record is
	// dead-lettered.
	MaxRetries int `koanf:"max_retries" validate:"gte=1"`

	BaseDelay time.Duration `koanf:"base_delay" validate:"gt=0"`
	MaxDelay  time.Duration `koanf:"max_delay" validate:"gtefield=BaseDelay"`

	// Jitter is the relative random spread applied to each delay (0.25 = ±25%).
	Jitter float64 `koanf:"jitter" validate:"gte=0,lt=1"`

	// BreakerThreshold is the number of consecutive failures that opens the
	// circuit breaker.
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"gte=1"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`

	// ReplayInterval is the period of the background replay trigger.
	ReplayInterval time.Duration `koanf:"replay_interval" validate:"gt=0"`

	// BatchSize caps the records considered in one pass.
	BatchSize int `koanf:"batch_size" validate:"gte=1"`
}

// DefaultConfig returns the default replay settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		BaseDelay:        2 * time.Second,
		MaxDelay:         30 * time.Second,
		Jitter:           0.25,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		ReplayInterval:   time.Minute,
		BatchSize:        100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = d.Jitter
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = d.BreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = d.BreakerCooldown
	}
	if c.ReplayInterval <= 0 {
		c.ReplayInterval = d.ReplayInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}

// Backoff returns the delay before the next attempt of a record that has
// failed retries times: min(base * 2^retries, max), before jitter.
func (c Config) Backoff(retries int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(2, float64(retries))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// jittered spreads d by ±Jitter using r in [0, 1).
func (c Config) jittered(d time.Duration, r float64) time.Duration {
	j := float64(d) * c.Jitter * (2*r - 1)
	out := time.Duration(float64(d) + j)
	if out < 0 {
		return 0
	}
	return out
}
