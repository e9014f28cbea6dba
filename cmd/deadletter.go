package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/app"
)

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect and recover changes the remote store rejected",
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			recs, err := c.Engine.DeadLetters(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No dead-lettered changes.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-8s  %-28s  %7s  %s\n", "ID", "Kind", "Entity", "Retries", "Error")
			fmt.Fprintln(out, strings.Repeat("─", 100))
			for _, r := range recs {
				fmt.Fprintf(out, "%-36s  %-8s  %-28s  %7d  %s\n",
					r.ID, r.Kind, truncate(r.EntityKey, 28), r.RetryCount, r.LastError)
			}
			return nil
		})
	},
}

var deadletterRequeueCmd = &cobra.Command{
	Use:   "requeue [ID...]",
	Short: "Return dead-lettered changes to the queue (all when no ID is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			n, err := c.Engine.Requeue(ctx, args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d changes requeued\n", n)
			return nil
		})
	},
}

var deadletterPurgeCmd = &cobra.Command{
	Use:   "purge [ID...]",
	Short: "Delete dead-lettered changes (all when no ID is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if len(args) == 0 && !all {
			return fmt.Errorf("pass IDs to purge, or --all")
		}
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			n, err := c.Engine.Purge(ctx, args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d changes purged\n", n)
			return nil
		})
	},
}

func init() {
	deadletterPurgeCmd.Flags().Bool("all", false, "Purge every dead-lettered change")
	deadletterCmd.AddCommand(deadletterListCmd, deadletterRequeueCmd, deadletterPurgeCmd)
}
