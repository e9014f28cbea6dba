package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/app"
	"github.com/abhisek/retain/internal/offline"
	"github.com/abhisek/retain/internal/ui/theme"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued changes to the remote store",
	Long: `Replay queued changes to the remote store.

Without --watch a single replay pass runs and its report is printed.
With --watch the replay loop runs every sync.replay_interval until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			out := cmd.OutOrStdout()
			if !watch {
				rep, err := c.Engine.Replay(ctx)
				if err != nil {
					return err
				}
				printReport(out, rep)
				return printStatus(ctx, out, c)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			stopSync, err := c.Background(ctx)
			if err != nil {
				return err
			}
			c.Engine.Kick()
			fmt.Fprintf(out, "Replaying every %s, Ctrl-C to stop.\n", c.Config.Sync.ReplayInterval)
			<-ctx.Done()
			stopSync()
			return printStatus(context.WithoutCancel(ctx), out, c)
		})
	},
}

func printReport(w io.Writer, rep offline.Report) {
	if rep.Skipped {
		fmt.Fprintln(w, theme.Warn.Render("offline, replay skipped"))
		return
	}
	fmt.Fprintf(w, "applied %d, retried %d, conflicts %d, deferred %d, dead-lettered %d\n",
		rep.Applied, rep.Retried, rep.Conflicts, rep.Deferred, rep.DeadLettered)
	if rep.BreakerOpen {
		fmt.Fprintln(w, theme.Warn.Render("circuit breaker open, pass stopped early"))
	}
}

func printStatus(ctx context.Context, w io.Writer, c *app.Container) error {
	st, err := c.Engine.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %d pending, %d in flight, %d dead\n", theme.Pad(theme.Label.Render("Queue"), 10), st.Pending, st.InFlight, st.Dead)
	fmt.Fprintf(w, "%s %s (%s)\n", theme.Pad(theme.Label.Render("Remote"), 10), c.Authority.Name(), theme.Breaker(st.Breaker))
	if !st.LastSuccess.IsZero() {
		fmt.Fprintf(w, "%s %s\n", theme.Pad(theme.Label.Render("Last sync"), 10), st.LastSuccess.Local().Format("2006-01-02 15:04:05"))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "%s %s\n", theme.Pad(theme.Label.Render("Last error"), 10), theme.Warn.Render(st.LastError))
	}
	return nil
}

func init() {
	syncCmd.Flags().Bool("watch", false, "Keep replaying until interrupted")
}
