// Package ingestion imports an existing manuscript into a book. The text is
// split into chapters at Markdown headings, each chapter is saved as a
// planning row and then indexed for search. This pipeline is invoked by the
// `plotline import` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/54b3r/plotline-go/internal/planning"
)

// maxManuscriptBytes bounds a fetched or read manuscript.
const maxManuscriptBytes = 32 << 20

// ChapterStore saves chapters and reloads them as indexable entities.
// *planning.GormRepo satisfies it.
type ChapterStore interface {
	UpsertChapter(ctx context.Context, bookID string, number int, title, content string) (string, error)
	Entity(ctx context.Context, bookID string, c planning.Category, id string) (planning.Entity, error)
}

// Indexer writes an entity's chunks. *retrieval.Service satisfies it.
type Indexer interface {
	UpdateSourceEmbeddings(ctx context.Context, bookID string, e planning.Entity) (int, error)
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// HTTPTimeout is the timeout for fetching a manuscript URL.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Report summarises one import.
type Report struct {
	// Chapters is the number of chapters saved.
	Chapters int
	// Chunks is the total number of chunks written.
	Chunks int
}

// Pipeline orchestrates the load → split → save → index flow.
type Pipeline struct {
	// chapters persists the parsed chapters.
	chapters ChapterStore

	// index embeds and stores each saved chapter.
	index Indexer

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching manuscripts by URL.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(chapters ChapterStore, index Indexer, cfg *Config) (*Pipeline, error) {
	if chapters == nil {
		return nil, fmt.Errorf("ingestion: chapter store must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: indexer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "plotline-go/1.0 (manuscript import)"
	}

	return &Pipeline{
		chapters: chapters,
		index:    index,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Import loads the manuscript at src (a file path or an http(s) URL), splits
// it into chapters and saves and indexes each one in bookID. Chapters are
// processed sequentially and the first error stops the import; chapters
// already saved stay saved. Progress is reported via the optional callback.
func (p *Pipeline) Import(ctx context.Context, bookID, src string, progress func(msg string)) (Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	var rep Report
	if bookID == "" {
		return rep, fmt.Errorf("ingestion: book id must not be empty")
	}

	progress(fmt.Sprintf("loading %s", src))
	text, err := p.load(ctx, src)
	if err != nil {
		return rep, fmt.Errorf("ingestion: load %s: %w", src, err)
	}

	chapters := SplitChapters(text)
	if len(chapters) == 0 {
		return rep, fmt.Errorf("ingestion: %s contains no text", src)
	}
	progress(fmt.Sprintf("split %s into %d chapters", src, len(chapters)))

	for _, ch := range chapters {
		id, err := p.chapters.UpsertChapter(ctx, bookID, ch.Number, ch.Title, ch.Content)
		if err != nil {
			return rep, fmt.Errorf("ingestion: %w", err)
		}
		e, err := p.chapters.Entity(ctx, bookID, planning.Chapters, id)
		if err != nil {
			return rep, fmt.Errorf("ingestion: %w", err)
		}
		n, err := p.index.UpdateSourceEmbeddings(ctx, bookID, e)
		if err != nil {
			return rep, fmt.Errorf("ingestion: index chapter %d: %w", ch.Number, err)
		}
		rep.Chapters++
		rep.Chunks += n
		progress(fmt.Sprintf("chapter %d %q: %d chunks", ch.Number, ch.Title, n))
	}
	return rep, nil
}

// load returns the manuscript text from a URL or a local file.
func (p *Pipeline) load(ctx context.Context, src string) (string, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return p.fetch(ctx, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, maxManuscriptBytes))
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(body), nil
}

// fetch retrieves the raw text content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/markdown, text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManuscriptBytes))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}
