// Package splitter breaks oversized content into ordered size-bounded parts
//
// Cut points prefer paragraph breaks, then sentence ends, then word gaps,
// then raw characters. Parts are exact substrings of the input; concatenating
// them in order reproduces the original byte for byte
package splitter

import (
	"strings"
	"unicode/utf8"

	"seriate/internal/core/bytesize"
)

// Boundary identifies the kind of cut that ended a part
type Boundary string

// Boundary kinds, from most to least preferred
const (
	BoundaryNone      Boundary = "none"
	BoundaryParagraph Boundary = "paragraph"
	BoundarySentence  Boundary = "sentence"
	BoundaryWord      Boundary = "word"
	BoundaryCharacter Boundary = "character"

	// BoundaryForced marks the emergency path: content with no usable
	// boundary at all inside the budget, emitted whole
	BoundaryForced Boundary = "forced"
)

// FindSplit returns the byte offset of the best cut in text for the given
// boundary kind such that the prefix's estimated encoded size fits
// targetBytes. For marker kinds it is the offset just after the last marker
// that still fits, or 0 when no marker fits (caller falls back to a coarser
// kind). For BoundaryCharacter it is the offset before the first rune that
// would overflow, or len(text) when everything fits. Single forward scan;
// prefix sizes are grown incrementally, never recomputed
func FindSplit(text string, targetBytes int, kind Boundary) int {
	if text == "" || targetBytes <= 0 {
		return 0
	}
	if kind == BoundaryCharacter {
		return characterSplit(text, targetBytes)
	}

	lastFit := 0
	i := 0
	for i < len(text) {
		end, ok := markerEnd(text, i, kind)
		if !ok {
			i++
			continue
		}
		if bytesize.WithOverhead(end) > targetBytes {
			break
		}
		lastFit = end
		i = end
	}
	return lastFit
}

// characterSplit accumulates encoded rune lengths so multi-byte sequences
// are never cut mid-encoding
func characterSplit(text string, targetBytes int) int {
	for i, r := range text {
		rl := utf8.RuneLen(r)
		if rl < 0 {
			rl = 1 // invalid byte, counted as-is so offsets stay exact
		}
		if bytesize.WithOverhead(i+rl) > targetBytes {
			return i
		}
	}
	return len(text)
}

// markerEnd reports whether a boundary marker of the given kind starts at i,
// and if so the offset just past it
func markerEnd(text string, i int, kind Boundary) (int, bool) {
	switch kind {
	case BoundaryParagraph:
		return paragraphEnd(text, i)
	case BoundarySentence:
		return sentenceEnd(text, i)
	case BoundaryWord:
		if text[i] == ' ' {
			return i + 1, true
		}
	}
	return 0, false
}

// paragraphEnd matches a blank line (a newline, optional horizontal
// whitespace, another newline) or doubled <br> markup, consuming the whole
// blank run so the next part starts at visible text
func paragraphEnd(text string, i int) (int, bool) {
	if end, ok := doubleBreakEnd(text, i); ok {
		return end, true
	}
	if text[i] != '\n' {
		return 0, false
	}
	j := i + 1
	sawSecond := false
	for j < len(text) {
		c := text[j]
		if c == '\n' {
			sawSecond = true
			j++
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			// only part of the blank run if another newline follows
			k := j
			for k < len(text) && (text[k] == ' ' || text[k] == '\t' || text[k] == '\r') {
				k++
			}
			if k < len(text) && text[k] == '\n' {
				j = k
				continue
			}
		}
		break
	}
	if !sawSecond {
		return 0, false
	}
	return j, true
}

// brForms are the block-break markup variants treated as a line break
var brForms = []string{"<br>", "<br/>", "<br />"}

// doubleBreakEnd matches two consecutive <br> tags, optionally separated by
// horizontal whitespace
func doubleBreakEnd(text string, i int) (int, bool) {
	first, ok := brAt(text, i)
	if !ok {
		return 0, false
	}
	j := first
	for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
		j++
	}
	second, ok := brAt(text, j)
	if !ok {
		return 0, false
	}
	return second, true
}

func brAt(text string, i int) (int, bool) {
	for _, f := range brForms {
		if len(text)-i >= len(f) && strings.EqualFold(text[i:i+len(f)], f) {
			return i + len(f), true
		}
	}
	return 0, false
}

// sentenceEnd matches terminal punctuation, an optional closing quote, and a
// required whitespace character; the offset includes that one whitespace
func sentenceEnd(text string, i int) (int, bool) {
	j := i
	r, size := utf8.DecodeRuneInString(text[j:])
	if !isTerminal(r) {
		return 0, false
	}
	j += size
	if j < len(text) {
		q, qs := utf8.DecodeRuneInString(text[j:])
		if isClosingQuote(q) {
			j += qs
		}
	}
	if j >= len(text) {
		return 0, false
	}
	c := text[j]
	if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
		return 0, false
	}
	return j + 1, true
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…': // …
		return true
	}
	return false
}

func isClosingQuote(r rune) bool {
	switch r {
	case '"', '\'', ')', '’', '”', '»': // ’ ” »
		return true
	}
	return false
}
