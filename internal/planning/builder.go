package planning

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/plotline-go/internal/budget"
	"github.com/54b3r/plotline-go/internal/logging"
)

// NoDataSentinel is returned by Build for a book with no planning rows.
const NoDataSentinel = "No planning data available yet. Start by adding plot points, characters, or chapters to build your book's plan."

const (
	// rowOverhead approximates the per-row formatting cost (bullet, separator,
	// newline) counted by the size estimate.
	rowOverhead = 50

	// truncMarker is appended to clipped fields.
	truncMarker = "..."

	// sectionSep separates sections in the assembled text.
	sectionSep = "\n\n"
)

// RowSource lists the current rows of one category for a book.
type RowSource interface {
	Rows(ctx context.Context, bookID string, c Category) ([]Row, error)
}

// Builder assembles the planning context blob for a book.
type Builder struct {
	src    RowSource
	budget budget.Planning
}

// NewBuilder returns a Builder reading from src and bounded by b.
func NewBuilder(src RowSource, b budget.Planning) *Builder {
	return &Builder{src: src, budget: b}
}

// MaxChars returns the character ceiling Build works against.
func (b *Builder) MaxChars() int { return b.budget.MaxChars() }

// Build returns the planning context for bookID. Sections appear in
// [Categories] order, each headed by its label and row count. When the
// estimated size exceeds the budget every row's detail is clipped to a cap
// that shrinks with the category's row count, and a section that still does
// not fit is replaced by a one-line presence marker, or skipped if even that
// does not fit. A book with no rows yields [NoDataSentinel].
//
// Build fails only when a category query fails.
func (b *Builder) Build(ctx context.Context, bookID string) (string, error) {
	rows, err := b.fetch(ctx, bookID)
	if err != nil {
		return "", err
	}
	log := logging.FromContext(ctx)

	total := 0
	for _, r := range rows {
		total += len(r)
	}
	if total == 0 {
		return NoDataSentinel, nil
	}

	limit := b.budget.MaxChars()
	estimate := estimateSize(rows)
	truncate := estimate > limit

	var (
		out      strings.Builder
		used     int
		first    string
		included int
		omitted  int
	)
	for i, c := range Categories {
		if len(rows[i]) == 0 {
			continue
		}
		rowCap := -1
		if truncate {
			rowCap = b.budget.RowCapFor(len(rows[i]))
		}
		section := renderSection(c, rows[i], rowCap)
		if first == "" {
			first = section
		}

		sep := 0
		if used > 0 {
			sep = len(sectionSep)
		}
		n := utf8.RuneCountInString(section)
		if used+sep+n <= limit {
			if sep > 0 {
				out.WriteString(sectionSep)
			}
			out.WriteString(section)
			used += sep + n
			included++
			continue
		}

		omitted++
		marker := fmt.Sprintf("## %s (%d entries omitted)", c.Label(), len(rows[i]))
		if m := utf8.RuneCountInString(marker); used+sep+m <= limit {
			if sep > 0 {
				out.WriteString(sectionSep)
			}
			out.WriteString(marker)
			used += sep + m
		}
	}

	log.Debug("planning context built",
		"book_id", bookID,
		"rows", total,
		"estimate_chars", estimate,
		"max_chars", limit,
		"truncated", truncate,
		"sections", included,
		"omitted", omitted,
	)

	if used == 0 {
		// Not even one section or marker fits: return the highest-priority
		// section rather than nothing.
		log.Warn("planning context exceeds budget with a single section",
			"book_id", bookID,
			"max_chars", limit,
			"chars", utf8.RuneCountInString(first),
		)
		return first, nil
	}
	return out.String(), nil
}

// fetch loads every category concurrently. rows[i] belongs to Categories[i].
func (b *Builder) fetch(ctx context.Context, bookID string) ([][]Row, error) {
	rows := make([][]Row, len(Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range Categories {
		g.Go(func() error {
			r, err := b.src.Rows(gctx, bookID, c)
			if err != nil {
				return fmt.Errorf("planning: fetch %s: %w", c, err)
			}
			rows[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// estimateSize approximates the serialised size of rows in characters.
func estimateSize(rows [][]Row) int {
	n := 0
	for _, rs := range rows {
		for _, r := range rs {
			n += utf8.RuneCountInString(r.Title) + utf8.RuneCountInString(r.Detail) + rowOverhead
		}
	}
	return n
}

// renderSection formats one category. A negative rowCap disables clipping.
func renderSection(c Category, rows []Row, rowCap int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s (%d)", c.Label(), len(rows))
	for _, r := range rows {
		title := strings.TrimSpace(r.Title)
		detail := strings.TrimSpace(r.Detail)
		if rowCap >= 0 {
			title = clip(title, max(rowCap, titleFloor))
			detail = clip(detail, rowCap)
		}
		sb.WriteString("\n- ")
		sb.WriteString(title)
		if detail != "" {
			sb.WriteString(": ")
			sb.WriteString(detail)
		}
	}
	return sb.String()
}

// titleFloor keeps titles readable in heavily clipped categories.
const titleFloor = 60

// clip shortens s to at most n runes followed by truncMarker. n <= 0 yields
// an empty string.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimRightFunc(string(r[:n]), unicode.IsSpace) + truncMarker
}

