package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Config selects and configures the remote authority.
type Config struct {
	// Driver selects the authority. Values: "postgres", "memory".
	Driver string `koanf:"driver" validate:"oneof=postgres memory"`

	DSN      string `koanf:"dsn" validate:"required_if=Driver postgres"`
	MaxConns int32  `koanf:"max_conns" validate:"gte=0"`
	LogSQL   bool   `koanf:"log_sql"`

	// ApplyTimeout bounds a single apply call.
	ApplyTimeout time.Duration `koanf:"apply_timeout" validate:"gt=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:       "memory",
		ApplyTimeout: 30 * time.Second,
	}
}

// New creates an Authority from configuration.
// It returns the authority wrapped with timeout and logging middleware.
func New(ctx context.Context, cfg Config, log logrus.FieldLogger) (Authority, error) {
	var base Authority

	switch cfg.Driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(ctx, pgTimeout)
		defer cancel()
		pg, err := NewPostgres(ctx, PostgresConfig{DSN: cfg.DSN, MaxConns: cfg.MaxConns, LogSQL: cfg.LogSQL}, log)
		if err != nil {
			return nil, fmt.Errorf("initializing postgres authority: %w", err)
		}
		base = pg
	case "memory":
		base = NewMemory()
	default:
		return nil, fmt.Errorf("unknown remote driver: %q", cfg.Driver)
	}

	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ApplyTimeout
	}

	// caller → logging → timeout → base
	return WithLogging(WithTimeout(base, timeout), log), nil
}
