package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/app"
	"github.com/abhisek/retain/internal/queue"
	"github.com/abhisek/retain/internal/store"
	"github.com/abhisek/retain/internal/ui/theme"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the next review batch for a learner",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := batchRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			now := time.Now()
			out := cmd.OutOrStdout()
			entries, err := nextBatch(ctx, c, req, now)
			if errors.Is(err, queue.ErrNoCandidates) {
				fmt.Fprintln(out, "Nothing to review.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-4s  %-24s  %-10s  %6s  %-6s  %s\n", "#", "Item", "State", "Score", "Tier", "Due")
			fmt.Fprintln(out, strings.Repeat("─", 70))
			for i, e := range entries {
				tier := e.Tier.String()
				if e.Pinned {
					tier = "pinned"
				}
				fmt.Fprintf(out, "%-4d  %s  %s  %6.1f  %s  %s\n",
					i+1, theme.Pad(truncate(e.Item.ID, 24), 24), theme.Pad(theme.State(string(e.State.State)), 10), e.Score,
					theme.Pad(theme.Tier(tier), 6), formatDue(e.State.NextDue, now))
			}
			fmt.Fprintf(out, "\n%d items\n", len(entries))
			return nil
		})
	},
}

// batchRequest carries the queue flags shared by queue and review.
type batchRequest struct {
	User     string
	Limit    int
	Consumed int
	Seed     uint64
	Pins     []queue.Pin
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("user", "", "Learner id (required)")
	cmd.Flags().Int("limit", 0, "Daily limit (default from config)")
	cmd.Flags().Int("consumed", -1, "Items already reviewed today (default: counted from history)")
	cmd.Flags().Uint64("seed", 0, "Shuffle seed for a reproducible order")
	cmd.Flags().StringToInt("pin", nil, "Pin items at positions, e.g. --pin tokyo=0")
	_ = cmd.MarkFlagRequired("user")
}

func batchRequestFromFlags(cmd *cobra.Command) (batchRequest, error) {
	var req batchRequest
	req.User, _ = cmd.Flags().GetString("user")
	req.Limit, _ = cmd.Flags().GetInt("limit")
	req.Consumed, _ = cmd.Flags().GetInt("consumed")
	req.Seed, _ = cmd.Flags().GetUint64("seed")
	pins, _ := cmd.Flags().GetStringToInt("pin")
	if req.User == "" {
		return req, fmt.Errorf("--user is required")
	}
	for id, pos := range pins {
		if pos < 0 {
			return req, fmt.Errorf("pin %s: position must not be negative", id)
		}
		req.Pins = append(req.Pins, queue.Pin{ItemID: id, Position: pos})
	}
	sort.Slice(req.Pins, func(i, j int) bool {
		if req.Pins[i].Position != req.Pins[j].Position {
			return req.Pins[i].Position < req.Pins[j].Position
		}
		return req.Pins[i].ItemID < req.Pins[j].ItemID
	})
	return req, nil
}

// nextBatch reads candidates from one snapshot and orders them.
func nextBatch(ctx context.Context, c *app.Container, req batchRequest, now time.Time) ([]queue.Entry, error) {
	limits := queue.Limits{Daily: req.Limit, Consumed: req.Consumed}
	if limits.Daily == 0 {
		limits.Daily = c.Config.Queue.DailyLimit
	}

	var cands []queue.Candidate
	err := c.Store.ReadTx(ctx, func(r *store.Repo) error {
		if limits.Consumed < 0 {
			n, err := r.CountAnswersSince(ctx, req.User, startOfDay(now))
			if err != nil {
				return err
			}
			limits.Consumed = n
		}
		var err error
		cands, err = r.Candidates(ctx, req.User, now, lo.Map(req.Pins, func(p queue.Pin, _ int) string {
			return p.ItemID
		})...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	gen := c.Generator
	if req.Seed != 0 {
		gen = queue.NewGenerator(
			queue.WithSeed(req.Seed),
			queue.WithRecencyWindow(c.Config.Queue.RecencyWindow),
			queue.WithClock(func() time.Time { return now }),
		)
	}
	return gen.Generate(cands, limits, req.Pins)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	addBatchFlags(queueCmd)
}
