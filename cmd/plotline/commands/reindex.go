package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/plotline-go/internal/logging"
)

// NewReindexCmd constructs the `plotline reindex` command, which rebuilds
// every chunk of a book from its current planning rows and chapters.
func NewReindexCmd() *cobra.Command {
	var bookID string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild a book's search index",
		Long: `Rebuild the search index of a book.

Every chunk of the book is removed, then each chapter, character, location,
plot point, timeline event, scene card, research item and brainstorming note
is re-chunked and re-embedded. Entities that fail are reported and skipped.

Examples:
  plotline reindex --book 5f0c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			defer a.close()

			start := time.Now()
			report, err := a.retrieval.ReindexCollection(ctx, bookID)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d entities, %d indexed, %d skipped, %d chunks in %s\n",
				color.GreenString("reindexed"),
				report.Entities, report.Indexed, report.Skipped, report.Chunks,
				time.Since(start).Round(time.Millisecond))
			if report.Failed > 0 {
				fmt.Fprintf(out, "%s %d entities failed, see logs\n", color.YellowString("warning:"), report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&bookID, "book", "b", "", "Book id")
	_ = cmd.MarkFlagRequired("book")

	return cmd
}
