package commands

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/plotline-go/internal/logging"
)

// NewSuggestCmd constructs the `plotline suggest` command, which asks the
// writing assistant for help with a book and streams the answer to stdout.
func NewSuggestCmd() *cobra.Command {
	var bookID string

	cmd := &cobra.Command{
		Use:   "suggest [instruction]",
		Short: "Ask the writing assistant for a suggestion",
		Long: `Ask the writing assistant for help with a book.

The assistant receives the book's planning context and the excerpts most
related to the instruction, and may search the manuscript or look up
characters and locations while it answers.

Examples:
  plotline suggest --book 5f0c... "draft the opening paragraph of chapter 4"
  plotline suggest --book 5f0c... "does Alice's backstory contradict chapter 2?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			defer a.close()

			wa, _, _, err := a.newAgent(ctx)
			if err != nil {
				return fmt.Errorf("suggest: %w", err)
			}

			out := cmd.OutOrStdout()
			if err := wa.Suggest(ctx, bookID, strings.Join(args, " "), out); err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bookID, "book", "b", "", "Book id")
	_ = cmd.MarkFlagRequired("book")

	return cmd
}
