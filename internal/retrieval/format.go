package retrieval

import (
	"fmt"
	"strings"

	"github.com/54b3r/plotline-go/internal/rag"
)

// NoContext is rendered by FormatResults when there are no results.
const NoContext = "No relevant context found."

// FormatResults renders search hits as numbered excerpts for a prompt.
func FormatResults(results []rag.SearchResult) string {
	if len(results) == 0 {
		return NoContext
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s %s (score %.2f)\n%s", i+1, r.SourceType, r.SourceID, r.Score, r.Content)
	}
	return sb.String()
}
