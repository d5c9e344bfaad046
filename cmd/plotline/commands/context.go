package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/plotline-go/internal/cache"
	"github.com/54b3r/plotline-go/internal/logging"
)

// NewContextCmd constructs the `plotline context` command, which prints the
// planning context the writing assistant would receive for a book.
func NewContextCmd() *cobra.Command {
	var (
		bookID  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print a book's planning context",
		Long: `Print the planning context of a book: plot points, characters, chapters,
locations, brainstorming notes, timeline, scene cards and research, in that
order, truncated to the planning token budget (PLANNING_TOKEN_BUDGET).

Examples:
  plotline context --book 5f0c...
  plotline context --book 5f0c... --no-cache`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			defer a.close()

			var blob string
			if noCache {
				blob, err = a.planner.Build(ctx, bookID)
			} else {
				blob, err = cache.GetOrBuild(ctx, a.cache, planningKey(bookID), func(ctx context.Context) (string, error) {
					return a.planner.Build(ctx, bookID)
				})
			}
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), blob)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bookID, "book", "b", "", "Book id")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Rebuild the context even when a cached copy exists")
	_ = cmd.MarkFlagRequired("book")

	return cmd
}

// planningKey is the cache key of bookID's planning context.
func planningKey(bookID string) string { return cache.PlanningKey(bookID) }
