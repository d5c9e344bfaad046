package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/plotline-go/internal/ingestion"
	"github.com/54b3r/plotline-go/internal/logging"
)

// NewImportCmd constructs the `plotline import` command, which loads an
// existing Markdown manuscript into a book as chapters and indexes them.
func NewImportCmd() *cobra.Command {
	var bookID string

	cmd := &cobra.Command{
		Use:   "import [file-or-url]",
		Short: "Import a Markdown manuscript into a book",
		Long: `Import a Markdown manuscript into a book.

The manuscript is split into chapters at level 1 and 2 headings
("# Chapter 3: The Storm", "# 12. Homecoming", "# Interlude"). Each chapter
is saved by number, replacing a chapter with the same number, then indexed
for search.

Examples:
  plotline import --book 5f0c... ./draft.md
  plotline import --book 5f0c... https://example.com/draft.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			defer a.close()

			p, err := ingestion.NewPipeline(a.repo, a.retrieval, nil)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			out := cmd.OutOrStdout()
			rep, err := p.Import(ctx, bookID, args[0], func(msg string) {
				fmt.Fprintln(out, color.HiBlackString(msg))
			})
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			if err := a.cache.Delete(ctx, planningKey(bookID)); err != nil {
				log.Warn("cache invalidation failed", "error", err)
			}
			fmt.Fprintf(out, "%s %d chapters, %d chunks\n", color.GreenString("imported"), rep.Chapters, rep.Chunks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bookID, "book", "b", "", "Book id")
	_ = cmd.MarkFlagRequired("book")

	return cmd
}
