// Package chunker splits source text into overlapping fixed-size windows
// ready for embedding. Sizes are measured in runes so multi-byte prose is
// never cut in the middle of a character.
package chunker

import (
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultSize is the default number of characters per chunk.
	DefaultSize = 800

	// DefaultOverlap is the default number of characters shared by consecutive chunks.
	DefaultOverlap = 100
)

// Config holds the chunker configuration.
type Config struct {
	// Size is the maximum number of characters per chunk.
	// Defaults to DefaultSize if zero or negative.
	Size int

	// Overlap is the number of characters repeated at the start of the next chunk.
	// Negative values become zero. Values ≥ Size are reduced to Size/10.
	Overlap int
}

// FromEnv returns a Config populated from CHUNK_SIZE and CHUNK_OVERLAP.
// Unset or malformed values leave the field zero so New applies defaults.
func FromEnv() *Config {
	cfg := &Config{}
	if v, err := strconv.Atoi(os.Getenv("CHUNK_SIZE")); err == nil {
		cfg.Size = v
	}
	if v, err := strconv.Atoi(os.Getenv("CHUNK_OVERLAP")); err == nil {
		cfg.Overlap = v
	} else {
		cfg.Overlap = DefaultOverlap
	}
	return cfg
}

// Chunker is a pure, reusable text splitter. It is safe for concurrent use.
type Chunker struct {
	// size is the resolved window length in runes.
	size int
	// overlap is the resolved overlap in runes; always < size.
	overlap int
}

// New constructs a Chunker from cfg, applying defaults for unset fields.
// A nil cfg yields DefaultSize/DefaultOverlap.
func New(cfg *Config) *Chunker {
	if cfg == nil {
		cfg = &Config{Overlap: DefaultOverlap}
	}
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	overlap := max(cfg.Overlap, 0)
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the resolved chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the resolved chunk overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into windows of at most Size runes, each starting
// Size-Overlap runes after the previous one. Every window is trimmed of
// surrounding whitespace and dropped if nothing remains. Text that fits in one
// window yields a single chunk; empty or whitespace-only text yields none.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= c.size {
		return []string{strings.TrimSpace(text)}
	}

	step := max(c.size-c.overlap, 1)
	chunks := make([]string, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := min(start+c.size, n)
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			chunks = append(chunks, s)
		}
	}
	return chunks
}
