package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/app"
	"github.com/abhisek/retain/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "retain",
	Short:         "Spaced-repetition review engine",
	Long:          "retain schedules reviews, grades answers and keeps progress in sync with a remote store.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides RETAIN_STORE__PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json or text)")
	rootCmd.PersistentFlags().String("remote", "", "Remote authority driver (postgres or memory)")
	rootCmd.PersistentFlags().String("remote-dsn", "", "Remote authority connection string")

	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(deadletterCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// withContainer builds the application from config and flags, runs fn and
// releases everything afterwards.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	file, _ := cmd.Flags().GetString("config")
	c, cleanup, err := app.Initialize(ctx, config.Options{File: file, Flags: cmd.Flags()})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()
	return fn(ctx, c)
}

// startOfDay returns local midnight of t.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// formatDue renders a due time relative to now.
func formatDue(due, now time.Time) string {
	switch {
	case due.IsZero():
		return "now"
	case !due.After(now):
		return "due"
	}
	d := due.Sub(now).Round(time.Minute)
	if d >= 48*time.Hour {
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
	return "in " + d.String()
}
