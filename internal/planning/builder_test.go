package planning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/plotline-go/internal/budget"
)

// fakeSource serves fixed rows per category.
type fakeSource struct {
	rows  map[Category][]Row
	err   map[Category]error
	calls atomic.Int32
}

func (f *fakeSource) Rows(_ context.Context, _ string, c Category) ([]Row, error) {
	f.calls.Add(1)
	if err := f.err[c]; err != nil {
		return nil, err
	}
	return f.rows[c], nil
}

func nRows(n, detailLen int, prefix string) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			Title:  fmt.Sprintf("%s %d", prefix, i),
			Detail: strings.Repeat("d", detailLen),
		}
	}
	return rows
}

var smallBudget = budget.Planning{Tokens: 100, CharsPerToken: 4} // 400 chars

func TestBuilder_EmptyBookReturnsSentinel(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	out, err := NewBuilder(src, budget.Planning{}).Build(context.Background(), "book")
	require.NoError(t, err)
	assert.Equal(t, NoDataSentinel, out)
	assert.NotEmpty(t, out)
	assert.EqualValues(t, len(Categories), src.calls.Load())
}

func TestBuilder_SingleShortChapter(t *testing.T) {
	t.Parallel()
	src := &fakeSource{rows: map[Category][]Row{
		Characters: {{Title: "Alice", Detail: "A curious baker"}},
		Chapters:   {{Title: "Ch.1: The Bakery Opens", Detail: "Alice opens her shop."}},
	}}
	b := NewBuilder(src, budget.Planning{})
	out, err := b.Build(context.Background(), "book")
	require.NoError(t, err)

	want := "## Characters (1)\n- Alice: A curious baker\n\n## Chapters (1)\n- Ch.1: The Bakery Opens: Alice opens her shop."
	assert.Equal(t, want, out)
	assert.NotContains(t, out, truncMarker)
	assert.Less(t, len(out), b.MaxChars())
}

func TestBuilder_PriorityOrder(t *testing.T) {
	t.Parallel()
	rows := make(map[Category][]Row)
	for _, c := range Categories {
		rows[c] = []Row{{Title: c.Label() + " row"}}
	}
	out, err := NewBuilder(&fakeSource{rows: rows}, budget.Planning{}).Build(context.Background(), "book")
	require.NoError(t, err)

	last := -1
	for _, c := range Categories {
		idx := strings.Index(out, "## "+c.Label()+" (1)")
		require.GreaterOrEqual(t, idx, 0, c)
		assert.Greater(t, idx, last, "%s out of order", c)
		last = idx
	}
}

func TestBuilder_NoTruncationUnderBudget(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("The lighthouse keeper hides a second logbook. ", 20) // ~920 chars
	src := &fakeSource{rows: map[Category][]Row{
		PlotPoints: {{Title: "Inciting incident", Detail: long}},
		Research:   nRows(30, 100, "Source"),
	}}
	b := NewBuilder(src, budget.Planning{})
	require.LessOrEqual(t, estimateSize([][]Row{src.rows[PlotPoints], src.rows[Research]}), b.MaxChars())

	out, err := b.Build(context.Background(), "book")
	require.NoError(t, err)
	assert.Contains(t, out, strings.TrimSpace(long))
	assert.Contains(t, out, "- Source 29: "+strings.Repeat("d", 100))
	assert.NotContains(t, out, truncMarker)
}

func TestBuilder_TruncatesByRowCount(t *testing.T) {
	t.Parallel()
	p := budget.Planning{Tokens: 1000, CharsPerToken: 4, RowCap: 200}
	src := &fakeSource{rows: map[Category][]Row{
		Characters: nRows(5, 500, "Char"),   // full cap: 200
		Locations:  nRows(15, 500, "Place"), // 70%: 140
	}}
	out, err := NewBuilder(src, p).Build(context.Background(), "book")
	require.NoError(t, err)

	assert.Contains(t, out, "- Char 0: "+strings.Repeat("d", 200)+truncMarker+"\n")
	assert.Contains(t, out, "- Place 0: "+strings.Repeat("d", 140)+truncMarker+"\n")
	assert.NotContains(t, out, strings.Repeat("d", 201))
	assert.LessOrEqual(t, utf8.RuneCountInString(out), p.MaxChars())
}

func TestBuilder_DropsLowerPriorityFirst(t *testing.T) {
	t.Parallel()
	plot := strings.Repeat("p", 100)
	char := strings.Repeat("c", 100)
	src := &fakeSource{rows: map[Category][]Row{
		PlotPoints: {{Title: "Heist", Detail: plot}},
		Characters: {{Title: "Mara", Detail: char}},
		SceneCards: nRows(25, 300, "Scene"),
		Research:   nRows(30, 300, "Source"),
	}}
	out, err := NewBuilder(src, smallBudget).Build(context.Background(), "book")
	require.NoError(t, err)

	assert.LessOrEqual(t, utf8.RuneCountInString(out), smallBudget.MaxChars())
	assert.Contains(t, out, "## Plot Points (1)\n- Heist: "+plot)
	assert.Contains(t, out, "## Characters (1)\n- Mara: "+char)
	assert.NotContains(t, out, "- Scene 0")
	assert.NotContains(t, out, "- Source 0")
	assert.Contains(t, out, "## Scene Cards (25 entries omitted)")
	assert.Contains(t, out, "## Research (30 entries omitted)")
}

func TestBuilder_BudgetInvariant(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		p    budget.Planning
		n    int
		size int
	}{
		{"small budget few rows", smallBudget, 3, 400},
		{"default budget many rows", budget.Planning{}, 200, 300},
		{"tight ratio", budget.Planning{Tokens: 2000, CharsPerToken: 2}, 60, 1000},
		{"huge categories", budget.Planning{Tokens: 500}, 1000, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rows := make(map[Category][]Row)
			for _, c := range Categories {
				rows[c] = nRows(tc.n, tc.size, c.Label())
			}
			out, err := NewBuilder(&fakeSource{rows: rows}, tc.p).Build(context.Background(), "book")
			require.NoError(t, err)
			assert.NotEmpty(t, out)
			assert.LessOrEqual(t, utf8.RuneCountInString(out), tc.p.MaxChars())
		})
	}
}

func TestBuilder_PathologicalSingleSection(t *testing.T) {
	t.Parallel()
	p := budget.Planning{Tokens: 1, CharsPerToken: 10}
	src := &fakeSource{rows: map[Category][]Row{
		Chapters: {{Title: "Ch.1", Detail: strings.Repeat("x", 500)}},
		Research: {{Title: "Notes"}},
	}}
	out, err := NewBuilder(src, p).Build(context.Background(), "book")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "## Chapters (1)\n- Ch.1: "), out)
	assert.NotEqual(t, NoDataSentinel, out)
}

func TestBuilder_FetchErrorIsReturned(t *testing.T) {
	t.Parallel()
	boom := errors.New("db unavailable")
	src := &fakeSource{
		rows: map[Category][]Row{PlotPoints: {{Title: "x"}}},
		err:  map[Category]error{Timeline: boom},
	}
	_, err := NewBuilder(src, budget.Planning{}).Build(context.Background(), "book")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "timeline")
}

func TestBuilder_Deterministic(t *testing.T) {
	t.Parallel()
	rows := make(map[Category][]Row)
	for _, c := range Categories {
		rows[c] = nRows(40, 250, c.Label())
	}
	b := NewBuilder(&fakeSource{rows: rows}, budget.Planning{Tokens: 3000})
	a, err := b.Build(context.Background(), "book")
	require.NoError(t, err)
	c, err := b.Build(context.Background(), "book")
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestClip(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", clip("abc", 3))
	assert.Equal(t, "ab...", clip("abc", 2))
	assert.Equal(t, "", clip("abc", 0))
	assert.Equal(t, "", clip("abc", -5))
	assert.Equal(t, "héll...", clip("héllo", 4))
	assert.Equal(t, "a...", clip("a   b", 3))
}

func TestParseCategory(t *testing.T) {
	t.Parallel()
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCategory("poem")
	assert.Error(t, err)
}
