// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then .env and RETAIN_* environment variables, then
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/abhisek/retain/internal/answer"
	"github.com/abhisek/retain/internal/offline"
	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/session"
	"github.com/abhisek/retain/internal/spacedrep"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: RETAIN_SYNC__MAX_RETRIES sets sync.max_retries.
const EnvPrefix = "RETAIN_"

// Config holds all configuration for the engine.
type Config struct {
	Store     StoreConfig             `koanf:"store"`
	Log       LogConfig               `koanf:"log"`
	Scheduler spacedrep.Params        `koanf:"scheduler"`
	Queue     QueueConfig             `koanf:"queue"`
	Session   session.Config          `koanf:"session"`
	Validator answer.RegistrySettings `koanf:"validator"`
	Sync      offline.Config          `koanf:"sync"`
	Remote    remote.Config           `koanf:"remote"`
	Jobs      JobsConfig              `koanf:"jobs"`
}

// StoreConfig locates the local database.
type StoreConfig struct {
	// Path is the SQLite file. Empty selects the default data path.
	Path string `koanf:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// QueueConfig bounds and tunes batch generation.
type QueueConfig struct {
	DailyLimit    int           `koanf:"daily_limit" validate:"gte=0"`
	RecencyWindow time.Duration `koanf:"recency_window" validate:"gte=0"`
}

// JobsConfig sets the period of background maintenance.
type JobsConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`

	// KeepSessions is how many ended sessions housekeeping retains. Zero
	// keeps them all.
	KeepSessions int `koanf:"keep_sessions" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info", Format: "json"},
		Scheduler: spacedrep.DefaultParams(),
		Queue:     QueueConfig{DailyLimit: 50, RecencyWindow: time.Hour},
		Session:   session.DefaultConfig(),
		Sync:      offline.DefaultConfig(),
		Remote:    remote.DefaultConfig(),
		Jobs:      JobsConfig{SweepInterval: time.Minute, KeepSessions: 100},
	}
}

// Options selects the sources Load reads besides defaults and environment.
type Options struct {
	// File is a YAML config file. Empty skips the file layer.
	File string
	// EnvFile is a dotenv file loaded into the environment. A missing file
	// is not an error. Empty means ".env".
	EnvFile string
	// Flags are command-line flags; only flags set by the user apply.
	Flags *pflag.FlagSet
}

// flagKeys maps flag names onto config keys.
var flagKeys = map[string]string{
	"db":         "store.path",
	"log-level":  "log.level",
	"log-format": "log.format",
	"remote":     "remote.driver",
	"remote-dsn": "remote.dsn",
}

// Load reads configuration from every layer and validates the result.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.File, err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read env file %s: %w", envFile, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if opts.Flags != nil {
		p := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("read flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns RETAIN_SYNC__MAX_RETRIES into sync.max_retries.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks field ranges and compiles the validator rules so a bad
// expression is reported at startup.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := answer.FromSettings(c.Validator); err != nil {
		return fmt.Errorf("invalid config: validator: %w", err)
	}
	return nil
}
