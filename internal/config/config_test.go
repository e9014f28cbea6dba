package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every file layer at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Sync.BreakerCooldown)
	assert.Equal(t, "memory", cfg.Remote.Driver)
	assert.Equal(t, 1, cfg.Session.MaxAttempts)
	assert.Equal(t, 100, cfg.Jobs.KeepSessions)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	p := writeFile(t, dir, "retain.yaml", `
log:
  level: debug
  format: text
queue:
  daily_limit: 20
sync:
  max_retries: 5
  base_delay: 1s
session:
  max_attempts: 2
  idle_timeout: 10m
validator:
  domains:
    kana:
      strip_diacritics: true
      typo_threshold: 0.9
`)

	cfg, err := Load(Options{File: p})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 20, cfg.Queue.DailyLimit)
	assert.Equal(t, time.Hour, cfg.Queue.RecencyWindow, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Sync.MaxDelay)
	assert.Equal(t, 2, cfg.Session.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	require.Contains(t, cfg.Validator.Domains, "kana")
	assert.True(t, cfg.Validator.Domains["kana"].StripDiacritics)
	assert.InDelta(t, 0.9, cfg.Validator.Domains["kana"].TypoThreshold, 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(Options{File: filepath.Join(dir, "nope.yaml")})
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	p := writeFile(t, dir, "retain.yaml", "sync:\n  max_retries: 5\n")
	t.Setenv("RETAIN_SYNC__MAX_RETRIES", "7")
	t.Setenv("RETAIN_REMOTE__APPLY_TIMEOUT", "45s")
	t.Setenv("RETAIN_STORE__PATH", "/tmp/x.db")

	cfg, err := Load(Options{File: p})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sync.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Remote.ApplyTimeout)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, ".env", "RETAIN_QUEUE__DAILY_LIMIT=12\n")
	t.Cleanup(func() { os.Unsetenv("RETAIN_QUEUE__DAILY_LIMIT") })

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Queue.DailyLimit)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("RETAIN_LOG__LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("log-level", "", "")
	fs.String("remote", "", "")
	require.NoError(t, fs.Parse([]string{"--log-level", "trace", "--db", "deck.db"}))

	cfg, err := Load(Options{Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.Log.Level)
	assert.Equal(t, "deck.db", cfg.Store.Path)
	assert.Equal(t, "memory", cfg.Remote.Driver, "unset flags leave the value alone")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"log level", "log:\n  level: loud\n"},
		{"log format", "log:\n  format: xml\n"},
		{"max attempts", "session:\n  max_attempts: 0\n"},
		{"remote driver", "remote:\n  driver: mongo\n"},
		{"postgres without dsn", "remote:\n  driver: postgres\n"},
		{"typo threshold", "validator:\n  default:\n    typo_threshold: 2\n"},
		{"negative keep sessions", "jobs:\n  keep_sessions: -1\n"},
		{"max delay below base", "sync:\n  base_delay: 1m\n  max_delay: 1s\n"},
		{"bad rule", "validator:\n  default:\n    rules:\n      - name: broken\n        expr: 'answer =='\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			p := writeFile(t, dir, "retain.yaml", tt.yaml)
			_, err := Load(Options{File: p})
			assert.Error(t, err)
		})
	}
}
