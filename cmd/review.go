package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/app"
	"github.com/abhisek/retain/internal/content"
	"github.com/abhisek/retain/internal/queue"
	"github.com/abhisek/retain/internal/session"
	"github.com/abhisek/retain/internal/ui/theme"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run an interactive review session",
	Long: `Run an interactive review session on stdin.

Type an answer and press enter. Commands:
  :hint    reveal one more letter of the answer
  :pause   pause the session
  :resume  resume a paused session
  :done    finish now, skipping the remaining items
  :quit    abandon the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := batchRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		modeName, _ := cmd.Flags().GetString("mode")
		mode, err := content.ParseMode(modeName)
		if err != nil {
			return err
		}

		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopSync, err := c.Background(ctx)
			if err != nil {
				return err
			}
			defer stopSync()

			out := cmd.OutOrStdout()
			entries, err := nextBatch(ctx, c, req, time.Now())
			if errors.Is(err, queue.ErrNoCandidates) {
				fmt.Fprintln(out, "Nothing to review.")
				return nil
			}
			if err != nil {
				return err
			}
			items := lo.FilterMap(entries, func(e queue.Entry, _ int) (content.Item, bool) {
				return e.Item, e.Item.Supports(mode)
			})
			if len(items) == 0 {
				fmt.Fprintf(out, "No due items support %s mode.\n", mode)
				return nil
			}

			s, err := c.Sessions.Start(ctx, req.User, items, mode)
			if err != nil {
				return err
			}
			loop := &reviewLoop{
				sessions: c.Sessions,
				id:       s.ID,
				total:    len(items),
				in:       bufio.NewScanner(cmd.InOrStdin()),
				out:      out,
			}
			if err := loop.run(ctx); err != nil {
				return err
			}

			if st, err := c.Engine.Status(ctx); err == nil && st.Pending > 0 {
				fmt.Fprintln(out, theme.Hint.Render(fmt.Sprintf("%d changes waiting to sync", st.Pending)))
			}
			return nil
		})
	},
}

type reviewLoop struct {
	sessions *session.Manager
	id       string
	total    int
	in       *bufio.Scanner
	out      io.Writer

	hintLevel int
}

func (l *reviewLoop) run(ctx context.Context) error {
	l.showItem()
	for {
		if ctx.Err() != nil {
			return l.abandon(ctx, "interrupted")
		}
		fmt.Fprint(l.out, theme.Prompt.Render("> "))
		if !l.in.Scan() {
			if err := l.in.Err(); err != nil {
				return err
			}
			return l.abandon(ctx, "input closed")
		}
		line := strings.TrimSpace(l.in.Text())

		switch line {
		case "":
			continue
		case ":hint":
			l.hintLevel++
			hint, err := l.sessions.Hint(ctx, l.id, l.hintLevel)
			if l.report(err) {
				continue
			}
			fmt.Fprintln(l.out, theme.Hint.Render("hint: "+hint))
		case ":pause":
			if l.report(l.sessions.Pause(ctx, l.id)) {
				continue
			}
			fmt.Fprintln(l.out, theme.Hint.Render("paused, :resume to continue"))
		case ":resume":
			if l.report(l.sessions.Resume(ctx, l.id)) {
				continue
			}
			l.showItem()
		case ":quit":
			return l.abandon(ctx, "quit")
		case ":done":
			return l.complete(ctx, true)
		default:
			done, err := l.answer(ctx, line)
			if err != nil {
				return err
			}
			if done {
				return l.complete(ctx, false)
			}
		}
	}
}

// answer submits line and reports whether the session ran out of items.
func (l *reviewLoop) answer(ctx context.Context, line string) (bool, error) {
	out, err := l.sessions.SubmitAnswer(ctx, l.id, line, 0)
	if errors.Is(err, session.ErrInvalidSessionState) {
		l.report(err)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch {
	case out.Ungradable:
		fmt.Fprintln(l.out, theme.Warn.Render("could not grade this item, skipping: "+out.Reason))
	case out.Result.Correct:
		fmt.Fprintf(l.out, "%s  %s\n", theme.Correct.Render(fmt.Sprintf("correct +%d", out.Score)), theme.Hint.Render(out.Result.Feedback))
	default:
		fmt.Fprintf(l.out, "%s  %s\n", theme.Incorrect.Render("incorrect"), theme.Hint.Render(out.Result.Feedback))
	}
	if out.Retry {
		fmt.Fprintln(l.out, theme.Hint.Render(fmt.Sprintf("%d attempts left", out.AttemptsLeft)))
		return false, nil
	}
	if !out.NextDue.IsZero() {
		fmt.Fprintln(l.out, theme.Label.Render(fmt.Sprintf("%s, next review %s", out.State, formatDue(out.NextDue, time.Now()))))
	}
	l.hintLevel = 0
	if out.Exhausted {
		return true, nil
	}
	l.showItem()
	return false, nil
}

func (l *reviewLoop) showItem() {
	s, err := l.sessions.Get(l.id)
	if err != nil {
		return
	}
	item, err := l.sessions.CurrentItem(l.id)
	if err != nil {
		return
	}
	prompt := item.Prompt
	if prompt == "" {
		prompt = item.ID
	}
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, theme.ProgressBar(fmt.Sprintf("%d/%d", s.CurrentIndex+1, l.total), float64(s.CurrentIndex)/float64(l.total), 40))
	fmt.Fprintln(l.out, theme.Card.Render(theme.Title.Render(prompt)))
}

func (l *reviewLoop) complete(ctx context.Context, early bool) error {
	sum, err := l.sessions.Complete(ctx, l.id, early)
	if err != nil {
		return err
	}
	printSummary(l.out, sum)
	return nil
}

func (l *reviewLoop) abandon(ctx context.Context, reason string) error {
	// The session may already be over after an idle sweep.
	if err := l.sessions.Abandon(context.WithoutCancel(ctx), l.id, reason); err != nil && !errors.Is(err, session.ErrInvalidSessionState) {
		return err
	}
	fmt.Fprintln(l.out, theme.Hint.Render("session abandoned, answers so far are saved"))
	return nil
}

// report prints a non-fatal session error and returns true if there was one.
func (l *reviewLoop) report(err error) bool {
	if err == nil {
		return false
	}
	logrus.WithError(err).Debug("review command rejected")
	fmt.Fprintln(l.out, theme.Warn.Render(err.Error()))
	return true
}

func printSummary(w io.Writer, sum session.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, theme.Title.Render("Session summary"))
	fmt.Fprintf(w, "%s %s\n", theme.Pad(theme.Label.Render("Duration"), 12), sum.Duration.Round(time.Second))
	fmt.Fprintf(w, "%s %d/%d correct (%.0f%%)\n", theme.Pad(theme.Label.Render("Answered"), 12), sum.Correct, sum.Answered, sum.Accuracy*100)
	fmt.Fprintf(w, "%s %d\n", theme.Pad(theme.Label.Render("Best streak"), 12), sum.BestStreak)
	fmt.Fprintf(w, "%s %.1f\n", theme.Pad(theme.Label.Render("Avg score"), 12), sum.AverageScore)
	if sum.Skipped > 0 {
		fmt.Fprintf(w, "%s %d\n", theme.Pad(theme.Label.Render("Skipped"), 12), sum.Skipped)
	}
	for _, b := range sum.ByDifficulty {
		fmt.Fprintf(w, "  %-8s %d/%d\n", b.Band, b.Correct, b.Answered)
	}
}

func init() {
	addBatchFlags(reviewCmd)
	reviewCmd.Flags().String("mode", string(content.ModeRecall), "Presentation mode (recognition, recall, listening)")
}
