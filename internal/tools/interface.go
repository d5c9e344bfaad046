// Package tools defines the tools the writing assistant can call during a
// conversation. Each tool satisfies both this package's WritingTool interface
// and Eino's tool.InvokableTool so it can be handed straight to a ChatModel.
// Tools act on the book bound to the request context with WithBook.
package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"

	"github.com/54b3r/plotline-go/internal/planning"
	"github.com/54b3r/plotline-go/internal/rag"
)

// WritingTool exposes a name accessor so the agent can log and route tool
// calls without type assertions.
type WritingTool interface {
	tool.InvokableTool

	// Name returns the unique tool name registered with the model.
	Name() string

	// Description returns the LLM-facing description of the tool.
	Description() string
}

// Searcher runs similarity search over a book's chunks.
type Searcher interface {
	Search(ctx context.Context, bookID, query string, limit int) ([]rag.SearchResult, error)
}

// PlanningSource renders a book's planning context.
type PlanningSource interface {
	Build(ctx context.Context, bookID string) (string, error)
}

// EntityGetter loads a single planning entity.
type EntityGetter interface {
	Entity(ctx context.Context, bookID string, c planning.Category, id string) (planning.Entity, error)
}

type bookKey struct{}

// WithBook returns a copy of ctx bound to bookID.
func WithBook(ctx context.Context, bookID string) context.Context {
	return context.WithValue(ctx, bookKey{}, bookID)
}

// BookFromContext returns the book bound to ctx.
func BookFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(bookKey{}).(string)
	return id, ok && id != ""
}

func requireBook(ctx context.Context, tool string) (string, error) {
	id, ok := BookFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("%s: no book bound to the request", tool)
	}
	return id, nil
}
