package splitter

import (
	"strings"

	"seriate/internal/core/bytesize"
	perr "seriate/internal/platform/errors"
)

// Budgets, in estimated encoded bytes
const (
	// SafeBudget is the largest estimated size publishable as a single part
	SafeBudget = 60000

	// metaReserve is held back from every part for the embedded manifest
	// marker and payload framing
	metaReserve = 2048

	// minPartSize is the smallest chunk worth emitting as its own part;
	// waived for the final remainder
	minPartSize = 2048

	// MaxParts caps a series; anything needing more is runaway input
	MaxParts = 100
)

// Part is one ordered slice of the source document
// Content is the exact substring, untrimmed; concatenating Content across a
// series in Number order reproduces the source exactly
type Part struct {
	Number     int
	TotalParts int
	Content    string
	ByteSize   int
	WordCount  int
	Boundary   Boundary
}

// fallback order from most to least preferred cut
var boundaryOrder = []Boundary{BoundaryParagraph, BoundarySentence, BoundaryWord, BoundaryCharacter}

// Split breaks content into parts that each fit the per-part budget
// The title shares the publish payload with every part, so its estimated
// size is deducted from the usable budget
func Split(content, title string) ([]Part, error) {
	if content == "" {
		return nil, perr.Validationf("content is empty")
	}

	if bytesize.Estimate(content) <= SafeBudget {
		p := newPart(1, content, BoundaryNone)
		p.TotalParts = 1
		return []Part{p}, nil
	}

	usable := SafeBudget - metaReserve - bytesize.Estimate(title)
	if usable <= 0 {
		return nil, perr.Validationf("title leaves no room for content")
	}

	var parts []Part
	rest := content
	for rest != "" {
		if len(parts) >= MaxParts {
			return nil, perr.Exhaustedf("content needs more than %d parts", MaxParts)
		}

		if bytesize.Estimate(rest) <= usable {
			parts = append(parts, newPart(len(parts)+1, rest, BoundaryNone))
			break
		}

		off, kind := 0, BoundaryForced
		for _, k := range boundaryOrder {
			o := FindSplit(rest, usable, k)
			if o > 0 && o >= minPartSize {
				off, kind = o, k
				break
			}
		}
		if off == 0 {
			// no boundary of any kind inside the budget; emit the remainder
			// whole rather than looping forever
			parts = append(parts, newPart(len(parts)+1, rest, BoundaryForced))
			break
		}

		parts = append(parts, newPart(len(parts)+1, rest[:off], kind))
		rest = rest[off:]
	}

	for i := range parts {
		parts[i].TotalParts = len(parts)
	}
	return parts, nil
}

func newPart(n int, content string, b Boundary) Part {
	return Part{
		Number:    n,
		Content:   content,
		ByteSize:  bytesize.Estimate(content),
		WordCount: len(strings.Fields(content)),
		Boundary:  b,
	}
}

// Join reassembles a series in part order. It is the inverse of Split
func Join(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Content)
	}
	return b.String()
}
