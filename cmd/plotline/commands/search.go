package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/plotline-go/internal/logging"
)

// NewSearchCmd constructs the `plotline search` command, which runs a
// semantic search over a book and prints the best matching chunks.
func NewSearchCmd() *cobra.Command {
	var (
		bookID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search a book's chapters and planning notes",
		Long: `Search a book by meaning rather than keywords.

Examples:
  plotline search --book 5f0c... "the argument in the bakery"
  plotline search --book 5f0c... --limit 10 "storm at sea"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer a.close()

			query := strings.Join(args, " ")
			results, err := a.retrieval.Search(ctx, bookID, query, limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, color.YellowString("no results"))
				return nil
			}
			heading := color.New(color.FgCyan, color.Bold).SprintFunc()
			score := color.New(color.FgGreen).SprintFunc()
			for i, r := range results {
				fmt.Fprintf(out, "%s %s %s\n", heading(fmt.Sprintf("[%d] %s/%s", i+1, r.SourceType, r.SourceID)),
					score(fmt.Sprintf("%.3f", r.Score)),
					color.HiBlackString("chunk %d", r.ChunkIndex))
				fmt.Fprintf(out, "%s\n\n", r.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&bookID, "book", "b", "", "Book id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	_ = cmd.MarkFlagRequired("book")

	return cmd
}
