package ingestion

import (
	"strconv"
	"strings"
	"unicode"
)

// Heading is the chapter number and title parsed from a Markdown heading.
type Heading struct {
	// Number is the explicit chapter number, or 0 when the heading has none.
	Number int
	// Title is the heading text with any "Chapter N" prefix removed.
	Title string
}

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

var romanValues = map[rune]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100}

// ParseHeading reports whether line is a level 1 or 2 Markdown heading and
// extracts its chapter number and title. Recognised forms:
//
//	# Chapter 3: The Storm
//	## Chapter Three - The Storm
//	# Chapter IV
//	# 12. The Storm
//	# The Storm
func ParseHeading(line string) (Heading, bool) {
	line = strings.TrimSpace(line)
	text, ok := strings.CutPrefix(line, "## ")
	if !ok {
		text, ok = strings.CutPrefix(line, "# ")
	}
	if !ok {
		return Heading{}, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Heading{}, false
	}

	fields := strings.Fields(text)
	if strings.EqualFold(fields[0], "chapter") && len(fields) > 1 {
		numTok := strings.TrimRight(fields[1], ":.-")
		if n := parseNumber(numTok); n > 0 {
			rest := strings.TrimSpace(strings.Join(fields[2:], " "))
			return Heading{Number: n, Title: trimSeparator(rest)}, true
		}
	}

	// "12. Title"
	if num, rest, ok := strings.Cut(text, ". "); ok {
		if n, err := strconv.Atoi(num); err == nil && n > 0 {
			return Heading{Number: n, Title: strings.TrimSpace(rest)}, true
		}
	}
	return Heading{Title: text}, true
}

// parseNumber reads an arabic, spelled-out or roman chapter number.
func parseNumber(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	lower := strings.ToLower(s)
	if n, ok := wordNumbers[lower]; ok {
		return n
	}
	return parseRoman(lower)
}

// parseRoman returns the value of a lowercase roman numeral up to "c", or 0.
func parseRoman(s string) int {
	if s == "" {
		return 0
	}
	total, prev := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		v, ok := romanValues[rune(s[i])]
		if !ok {
			return 0
		}
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total
}

// trimSeparator removes a leading ":", "-" or "." left between the number
// and the title.
func trimSeparator(s string) string {
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return r == ':' || r == '-' || r == '.' || r == '–' || r == '-' || unicode.IsSpace(r)
	})
}

// ParsedChapter is one chapter split out of a manuscript.
type ParsedChapter struct {
	Number  int
	Title   string
	Content string
}

// SplitChapters splits a Markdown manuscript at level 1 and 2 headings.
// Text before the first heading (a title page, usually) is dropped. A
// manuscript with no headings becomes a single untitled chapter 1. Headings
// without a number, or with one not greater than the previous chapter's,
// are numbered previous+1. Chapters with no body text are skipped.
func SplitChapters(text string) []ParsedChapter {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		out     []ParsedChapter
		cur     *ParsedChapter
		body    []string
		last    int
		matched bool
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Content = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Content != "" {
			out = append(out, *cur)
		}
	}

	for _, line := range lines {
		h, ok := ParseHeading(line)
		if !ok {
			body = append(body, line)
			continue
		}
		matched = true
		flush()
		n := h.Number
		if n <= last {
			n = last + 1
		}
		last = n
		cur = &ParsedChapter{Number: n, Title: h.Title}
		body = body[:0]
	}
	flush()

	if !matched {
		if content := strings.TrimSpace(text); content != "" {
			return []ParsedChapter{{Number: 1, Content: content}}
		}
	}
	return out
}
