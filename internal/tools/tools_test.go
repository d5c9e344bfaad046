package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/plotline-go/internal/planning"
	"github.com/54b3r/plotline-go/internal/rag"
	"github.com/54b3r/plotline-go/internal/retrieval"
)

type fakeSearcher struct {
	gotBook  string
	gotQuery string
	gotLimit int
	results  []rag.SearchResult
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, bookID, query string, limit int) ([]rag.SearchResult, error) {
	f.gotBook, f.gotQuery, f.gotLimit = bookID, query, limit
	if len(f.results) > limit {
		return f.results[:limit], f.err
	}
	return f.results, f.err
}

type planFunc func(ctx context.Context, bookID string) (string, error)

func (f planFunc) Build(ctx context.Context, bookID string) (string, error) { return f(ctx, bookID) }

type entityFunc func(ctx context.Context, bookID string, c planning.Category, id string) (planning.Entity, error)

func (f entityFunc) Entity(ctx context.Context, bookID string, c planning.Category, id string) (planning.Entity, error) {
	return f(ctx, bookID, c, id)
}

var _ WritingTool = (*SearchTool)(nil)
var _ WritingTool = (*PlanningTool)(nil)
var _ WritingTool = (*EntityTool)(nil)

func TestSearchTool_Info(t *testing.T) {
	t.Parallel()
	info, err := NewSearchTool(&fakeSearcher{}).Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "search_manuscript", info.Name)
	assert.NotEmpty(t, info.Desc)
}

func TestSearchTool_RequiresBook(t *testing.T) {
	t.Parallel()
	_, err := NewSearchTool(&fakeSearcher{}).InvokableRun(context.Background(), `{"query":"x"}`)
	assert.ErrorContains(t, err, "no book bound")
}

func TestSearchTool_Run(t *testing.T) {
	t.Parallel()
	s := &fakeSearcher{results: []rag.SearchResult{
		{SourceType: rag.SourceCharacter, SourceID: "c1", Content: "Character: Mara", Score: 0.9},
		{SourceType: rag.SourceChapter, SourceID: "ch1", Content: "Chapter: Ch.1", Score: 0.8},
	}}
	ctx := WithBook(context.Background(), "book-1")

	out, err := NewSearchTool(s).InvokableRun(ctx, `{"query":"who is Mara?"}`)
	require.NoError(t, err)
	assert.Equal(t, "book-1", s.gotBook)
	assert.Equal(t, "who is Mara?", s.gotQuery)
	assert.Equal(t, defaultSearchLimit, s.gotLimit)
	assert.Contains(t, out, "[1] character c1")
	assert.Contains(t, out, "[2] chapter ch1")

	_, err = NewSearchTool(s).InvokableRun(ctx, `{"query":"x","limit":500}`)
	require.NoError(t, err)
	assert.Equal(t, maxSearchLimit, s.gotLimit)
}

func TestSearchTool_FiltersBySourceType(t *testing.T) {
	t.Parallel()
	s := &fakeSearcher{results: []rag.SearchResult{
		{SourceType: rag.SourceCharacter, SourceID: "c1", Content: "a"},
		{SourceType: rag.SourceChapter, SourceID: "ch1", Content: "b"},
		{SourceType: rag.SourceChapter, SourceID: "ch2", Content: "c"},
	}}
	ctx := WithBook(context.Background(), "book-1")

	out, err := NewSearchTool(s).InvokableRun(ctx, `{"query":"x","limit":1,"source_type":"chapter"}`)
	require.NoError(t, err)
	assert.Equal(t, maxSearchLimit, s.gotLimit)
	assert.Contains(t, out, "chapter ch1")
	assert.NotContains(t, out, "ch2")
	assert.NotContains(t, out, "c1 ")

	_, err = NewSearchTool(s).InvokableRun(ctx, `{"query":"x","source_type":"poem"}`)
	assert.Error(t, err)
}

func TestSearchTool_Errors(t *testing.T) {
	t.Parallel()
	ctx := WithBook(context.Background(), "book-1")
	tl := NewSearchTool(&fakeSearcher{err: errors.New("no provider configured")})

	_, err := tl.InvokableRun(ctx, `not json`)
	assert.ErrorContains(t, err, "invalid input")
	_, err = tl.InvokableRun(ctx, `{"query":"  "}`)
	assert.ErrorContains(t, err, "query is required")
	_, err = tl.InvokableRun(ctx, `{"query":"x"}`)
	assert.ErrorContains(t, err, "no provider configured")
}

func TestSearchTool_NoResults(t *testing.T) {
	t.Parallel()
	ctx := WithBook(context.Background(), "book-1")
	out, err := NewSearchTool(&fakeSearcher{}).InvokableRun(ctx, `{"query":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, retrieval.NoContext, out)
}

func TestPlanningTool(t *testing.T) {
	t.Parallel()
	var got string
	tl := NewPlanningTool(planFunc(func(_ context.Context, bookID string) (string, error) {
		got = bookID
		return planning.NoDataSentinel, nil
	}))
	out, err := tl.InvokableRun(WithBook(context.Background(), "b"), `{}`)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Equal(t, planning.NoDataSentinel, out)

	_, err = tl.InvokableRun(context.Background(), `{}`)
	assert.Error(t, err)
}

func TestEntityTool(t *testing.T) {
	t.Parallel()
	tl := NewEntityTool(entityFunc(func(_ context.Context, bookID string, c planning.Category, id string) (planning.Entity, error) {
		if id != "c1" {
			return planning.Entity{}, planning.ErrNotFound
		}
		return planning.Entity{Category: c, ID: id, Fields: map[string]string{"name": "Mara"}}, nil
	}))
	ctx := WithBook(context.Background(), "b")

	out, err := tl.InvokableRun(ctx, `{"category":"character","id":"c1"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"character","id":"c1","fields":{"name":"Mara"}}`, out)

	_, err = tl.InvokableRun(ctx, `{"category":"character","id":"zz"}`)
	assert.ErrorIs(t, err, planning.ErrNotFound)

	_, err = tl.InvokableRun(ctx, `{"category":"poem","id":"c1"}`)
	assert.Error(t, err)

	_, err = tl.InvokableRun(ctx, `{"category":"character"}`)
	assert.True(t, err != nil && strings.Contains(err.Error(), "id is required"))
}
