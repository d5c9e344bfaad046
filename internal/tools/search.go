package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/plotline-go/internal/rag"
	"github.com/54b3r/plotline-go/internal/retrieval"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

// SearchTool finds manuscript and planning excerpts related to a query.
type SearchTool struct {
	searcher Searcher
}

type searchInput struct {
	// Query is the free-text search query.
	Query string `json:"query"`

	// Limit caps the number of excerpts returned.
	Limit int `json:"limit,omitempty"`

	// SourceType optionally restricts results to one kind of entity.
	SourceType string `json:"source_type,omitempty"`
}

// NewSearchTool constructs a SearchTool.
func NewSearchTool(s Searcher) *SearchTool {
	return &SearchTool{searcher: s}
}

// Name returns the tool name registered with the model.
func (t *SearchTool) Name() string { return "search_manuscript" }

// Description returns the LLM-facing description of this tool.
func (t *SearchTool) Description() string {
	return "Searches the current book's chapters, characters, locations, notes and research for passages " +
		"related to a query. Use it to check established facts before writing."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *SearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	types := make([]string, len(rag.SourceTypes))
	for i, st := range rag.SourceTypes {
		types[i] = string(st)
	}
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to look for, in natural language.",
				Required: true,
			},
			"limit": {
				Type: schema.Integer,
				Desc: fmt.Sprintf("Maximum number of excerpts (default %d, max %d).", defaultSearchLimit, maxSearchLimit),
			},
			"source_type": {
				Type: schema.String,
				Desc: "Only return excerpts from this kind of entity.",
				Enum: types,
			},
		}),
	}, nil
}

// InvokableRun runs the search and returns numbered excerpts.
func (t *SearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	bookID, err := requireBook(ctx, t.Name())
	if err != nil {
		return "", err
	}
	var in searchInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return "", fmt.Errorf("search_manuscript: invalid input: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("search_manuscript: query is required")
	}
	limit := in.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}

	fetch := limit
	if in.SourceType != "" {
		if _, err := rag.ParseSourceType(in.SourceType); err != nil {
			return "", fmt.Errorf("search_manuscript: %w", err)
		}
		fetch = maxSearchLimit
	}

	results, err := t.searcher.Search(ctx, bookID, in.Query, fetch)
	if err != nil {
		return "", fmt.Errorf("search_manuscript: %w", err)
	}
	if in.SourceType != "" {
		kept := make([]rag.SearchResult, 0, len(results))
		for _, r := range results {
			if string(r.SourceType) == in.SourceType {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return retrieval.FormatResults(results), nil
}
