package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/app"
	"github.com/abhisek/retain/internal/spacedrep"
	"github.com/abhisek/retain/internal/store"
	"github.com/abhisek/retain/internal/ui/theme"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		showItems, _ := cmd.Flags().GetBool("items")
		if user == "" {
			return fmt.Errorf("--user is required")
		}
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			var (
				counts map[spacedrep.LearningState]int
				items  int
				today  int
				latest *store.SessionRecord
				states []spacedrep.ScheduleState
			)
			now := time.Now()
			err := c.Store.ReadTx(ctx, func(r *store.Repo) error {
				var err error
				if counts, err = r.StateCounts(ctx, user); err != nil {
					return err
				}
				if items, err = r.CountItems(ctx); err != nil {
					return err
				}
				if today, err = r.CountAnswersSince(ctx, user, startOfDay(now)); err != nil {
					return err
				}
				if latest, err = r.LatestSession(ctx, user); err != nil {
					return err
				}
				if showItems {
					states, err = r.ListScheduleStates(ctx, user)
				}
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.Title.Render("Progress for "+user))
			for _, st := range []spacedrep.LearningState{spacedrep.StateNew, spacedrep.StateLearning, spacedrep.StateReview, spacedrep.StateMastered} {
				fmt.Fprintf(out, "  %s %d\n", theme.Pad(theme.State(string(st)), 10), counts[st])
			}
			if items > 0 {
				fmt.Fprintln(out, theme.ProgressBar("mastered", float64(counts[spacedrep.StateMastered])/float64(items), 30))
			}
			fmt.Fprintf(out, "\n%s %d items answered today (limit %d)\n", theme.Pad(theme.Label.Render("Today"), 10), today, c.Config.Queue.DailyLimit)
			if latest != nil {
				fmt.Fprintf(out, "%s %s, %s\n", theme.Pad(theme.Label.Render("Last"), 10), latest.Status, latest.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(out)
			if showItems {
				printItems(out, states, now)
				fmt.Fprintln(out)
			}
			return printStatus(ctx, out, c)
		})
	},
}

// printItems lists every scheduled item with its review status.
func printItems(w io.Writer, states []spacedrep.ScheduleState, now time.Time) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No items reviewed yet.")
		return
	}
	fmt.Fprintf(w, "%-24s  %-9s  %-9s  %8s  %s\n", "Item", "State", "Status", "Interval", "Due in")
	fmt.Fprintln(w, strings.Repeat("─", 66))
	for _, st := range states {
		due := "now"
		if d := st.DaysUntilDue(now); d > 0 {
			due = fmt.Sprintf("%dd", d)
		}
		fmt.Fprintf(w, "%s  %s  %s  %8s  %s\n",
			theme.Pad(truncate(st.ItemID, 24), 24),
			theme.Pad(theme.State(string(st.State)), 9),
			theme.Pad(theme.ReviewStatus(string(st.Status(now))), 9),
			formatInterval(st.Interval()), due)
	}
}

// formatInterval renders an interval in days, or hours and minutes when
// shorter than a day.
func formatInterval(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%.1fd", d.Hours()/24)
}

func init() {
	statsCmd.Flags().String("user", "", "Learner id (required)")
	statsCmd.Flags().Bool("items", false, "List every reviewed item with its status")
	_ = statsCmd.MarkFlagRequired("user")
}
