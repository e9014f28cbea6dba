package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/app"
	"github.com/abhisek/retain/internal/content"
	"github.com/abhisek/retain/internal/store"
	"github.com/abhisek/retain/internal/ui/theme"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import items from an xlsx workbook",
	Long: `Import items from an xlsx workbook.

The first row names the columns: id, prompt, answer, alternatives,
difficulty, tags, content_type, modes, preferred_mode. Existing items
with the same id are replaced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		sheet, _ := cmd.Flags().GetString("sheet")
		if path == "" {
			return fmt.Errorf("--file is required")
		}

		res, err := content.ImportXLSX(path, sheet)
		if err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			out := cmd.OutOrStdout()
			for _, msg := range res.Errors {
				fmt.Fprintln(out, theme.Warn.Render(msg))
			}
			if len(res.Items) == 0 {
				fmt.Fprintln(out, "No items to import.")
				return nil
			}
			err := c.Store.InTx(ctx, func(r *store.Repo) error {
				return r.UpsertItems(ctx, res.Items, time.Now())
			})
			if err != nil {
				return fmt.Errorf("save items: %w", err)
			}
			c.Logger.WithField("count", len(res.Items)).Info("items imported")
			fmt.Fprintf(out, "%d items imported, %d rows skipped\n", len(res.Items), res.Skipped)
			return nil
		})
	},
}

func init() {
	importCmd.Flags().String("file", "", "Path to the xlsx workbook (required)")
	importCmd.Flags().String("sheet", "", "Sheet name (default: first sheet)")
	_ = importCmd.MarkFlagRequired("file")
}
