package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"seriate/internal/core/bytesize"
)

// paragraphs builds n paragraphs of roughly width bytes each
func paragraphs(n, width int) string {
	var b strings.Builder
	word := "lorem "
	for i := 0; i < n; i++ {
		for j := 0; j < width/len(word); j++ {
			b.WriteString(word)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestSplit_SinglePartWhenContentFits(t *testing.T) {
	content := "short document, fits easily"
	parts, err := Split(content, "Title")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(parts))
	}
	p := parts[0]
	if p.Number != 1 || p.TotalParts != 1 || p.Boundary != BoundaryNone {
		t.Fatalf("single part shape wrong: %+v", p)
	}
	if p.Content != content {
		t.Fatalf("single part content mutated")
	}
}

func TestSplit_EmptyContentRejected(t *testing.T) {
	if _, err := Split("", "Title"); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestSplit_RoundTripExact(t *testing.T) {
	// leading/trailing whitespace and tabs must survive reassembly
	content := "  \t leading ws\n\n" + paragraphs(120, 1000) + "trailing ws \t "
	parts, err := Split(content, "My Long Document")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected a multi-part split, got %d", len(parts))
	}
	if got := Join(parts); got != content {
		t.Fatalf("round trip mismatch: len %d vs %d", len(got), len(content))
	}
}

func TestSplit_PartInvariants(t *testing.T) {
	title := "Invariants"
	content := paragraphs(150, 1000)
	parts, err := Split(content, title)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	usable := SafeBudget - metaReserve - bytesize.Estimate(title)
	for i, p := range parts {
		if p.Number != i+1 {
			t.Fatalf("part %d has number %d", i, p.Number)
		}
		if p.TotalParts != len(parts) {
			t.Fatalf("part %d TotalParts = %d, want %d", p.Number, p.TotalParts, len(parts))
		}
		if p.Boundary != BoundaryForced && p.ByteSize > usable {
			t.Fatalf("part %d estimate %d exceeds usable budget %d", p.Number, p.ByteSize, usable)
		}
		if p.WordCount == 0 {
			t.Fatalf("part %d has zero word count", p.Number)
		}
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	parts, err := Split(paragraphs(150, 1000), "T")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for _, p := range parts[:len(parts)-1] {
		if p.Boundary != BoundaryParagraph {
			t.Fatalf("part %d boundary = %q, want paragraph", p.Number, p.Boundary)
		}
		if !strings.HasSuffix(p.Content, "\n") {
			t.Fatalf("part %d does not end at a paragraph break", p.Number)
		}
	}
}

func TestSplit_FallsBackToSentences(t *testing.T) {
	content := strings.Repeat("This sentence carries the document forward. ", 2500)
	parts, err := Split(content, "T")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts")
	}
	for _, p := range parts[:len(parts)-1] {
		if p.Boundary != BoundarySentence {
			t.Fatalf("part %d boundary = %q, want sentence", p.Number, p.Boundary)
		}
	}
	if Join(parts) != content {
		t.Fatalf("round trip mismatch")
	}
}

func TestSplit_FallsBackToWords(t *testing.T) {
	content := strings.Repeat("unbrokenword ", 9000)
	parts, err := Split(content, "T")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for _, p := range parts[:len(parts)-1] {
		if p.Boundary != BoundaryWord {
			t.Fatalf("part %d boundary = %q, want word", p.Number, p.Boundary)
		}
	}
	if Join(parts) != content {
		t.Fatalf("round trip mismatch")
	}
}

func TestSplit_FallsBackToCharacters(t *testing.T) {
	// one giant unbroken token: no paragraph, sentence, or word boundary
	// anywhere; must fall through to character splitting and finish fast
	content := strings.Repeat("x", 1_000_000)
	parts, err := Split(content, "T")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts")
	}
	for _, p := range parts[:len(parts)-1] {
		if p.Boundary != BoundaryCharacter {
			t.Fatalf("part %d boundary = %q, want character", p.Number, p.Boundary)
		}
	}
	if Join(parts) != content {
		t.Fatalf("round trip mismatch")
	}
}

func TestSplit_MultiByteContentStaysValid(t *testing.T) {
	content := strings.Repeat("世界こん", 30000) // 12 bytes per group
	parts, err := Split(content, "T")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for _, p := range parts {
		if !utf8.ValidString(p.Content) {
			t.Fatalf("part %d contains a torn rune", p.Number)
		}
	}
	if Join(parts) != content {
		t.Fatalf("round trip mismatch")
	}
}

func TestSplit_PartCountCeiling(t *testing.T) {
	// each part tops out near the usable budget, so >100 parts requires
	// comfortably more than 100x that
	content := strings.Repeat("y", 101*SafeBudget)
	if _, err := Split(content, "T"); err == nil {
		t.Fatalf("expected part count ceiling error")
	}
}
