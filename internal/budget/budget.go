// Package budget provides token budget estimation for prompts sent to the
// writing assistant. Plotline talks to several LLM backends with different
// tokenizers, so it uses a character-based heuristic: 1 token ≈ 4 characters
// of English prose. The ratio is tunable for the planning context through
// [Planning.CharsPerToken].
package budget

import (
	"os"
	"strconv"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens
	// for agent conversations (system prompt, planning context, excerpts,
	// history, instruction).
	DefaultMaxContextTokens = 12000

	// DefaultPlanningTokens is the token budget for the planning context blob.
	DefaultPlanningTokens = 8000

	// DefaultRowCap is the per-row text cap, in characters, used when planning
	// truncation is active and a category has few rows.
	DefaultRowCap = 200
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory removes the oldest messages from history until the total
// estimated token count of fixed + history + current fits within maxTokens.
// fixed contains messages that must not be trimmed (system prompt, RAG context,
// planning context, current user message). history contains prior conversation
// turns that may be dropped oldest-first.
//
// Returns the trimmed history slice. If even an empty history exceeds the
// budget, the empty slice is returned (fixed messages are never dropped here -
// callers should warn separately if fixed alone exceeds the budget).
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)

	// Binary search would be more efficient but history is typically ≤20 msgs;
	// linear scan from the front (dropping oldest) is clear and correct.
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		// Drop the oldest message.
		history = history[1:]
	}
	return history
}

// Planning holds the planning-context budget parameters.
type Planning struct {
	// Tokens is the token ceiling for the planning blob. Defaults to DefaultPlanningTokens.
	Tokens int
	// CharsPerToken is the chars-per-token approximation. Defaults to 4.
	CharsPerToken int
	// RowCap is the full per-row cap used for small categories. Defaults to DefaultRowCap.
	RowCap int
}

// PlanningFromEnv reads PLANNING_TOKEN_BUDGET, PLANNING_CHARS_PER_TOKEN and
// PLANNING_ROW_CAP. Unset or malformed values stay zero and take defaults.
func PlanningFromEnv() Planning {
	atoi := func(key string) int {
		n, _ := strconv.Atoi(os.Getenv(key))
		return n
	}
	return Planning{
		Tokens:        atoi("PLANNING_TOKEN_BUDGET"),
		CharsPerToken: atoi("PLANNING_CHARS_PER_TOKEN"),
		RowCap:        atoi("PLANNING_ROW_CAP"),
	}
}

// withDefaults returns p with zero or negative fields replaced by defaults.
func (p Planning) withDefaults() Planning {
	if p.Tokens <= 0 {
		p.Tokens = DefaultPlanningTokens
	}
	if p.CharsPerToken <= 0 {
		p.CharsPerToken = charsPerToken
	}
	if p.RowCap <= 0 {
		p.RowCap = DefaultRowCap
	}
	return p
}

// MaxChars returns the character ceiling for the assembled planning context.
func (p Planning) MaxChars() int {
	p = p.withDefaults()
	return p.Tokens * p.CharsPerToken
}

// RowCapFor returns the per-row character cap for a category holding rows rows.
// Categories with more rows get shorter snippets:
//
//	rows ≤ 10 → 100% of cap
//	rows ≤ 20 → 70%
//	rows ≤ 50 → 50%
//	otherwise → 30%
//
// The result is never negative.
func (p Planning) RowCapFor(rows int) int {
	p = p.withDefaults()
	var pct int
	switch {
	case rows <= 10:
		pct = 100
	case rows <= 20:
		pct = 70
	case rows <= 50:
		pct = 50
	default:
		pct = 30
	}
	return max(p.RowCap*pct/100, 0)
}
