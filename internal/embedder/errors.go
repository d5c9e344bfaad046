package embedder

import (
	"errors"
	"strings"
)

// ErrEmbedding matches every *EmbeddingError via errors.Is.
var ErrEmbedding = errors.New("embedding failed")

// ErrNoProvider is returned when neither a caller provider nor a default
// provider is configured.
var ErrNoProvider = errors.New("no provider configured")

// ErrEmptyInput is returned when the text is empty after trimming.
var ErrEmptyInput = errors.New("empty input")

// EmbeddingError reports a failed Embed call.
type EmbeddingError struct {
	// Providers lists the provider labels that were attempted, in order.
	Providers []string
	// Err is the last underlying failure.
	Err error
}

func (e *EmbeddingError) Error() string {
	var b strings.Builder
	b.WriteString("embedder: ")
	b.WriteString(ErrEmbedding.Error())
	if len(e.Providers) > 0 {
		b.WriteString(" (tried ")
		b.WriteString(strings.Join(e.Providers, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrEmbedding) match any EmbeddingError.
func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }
