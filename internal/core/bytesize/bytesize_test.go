package bytesize

import (
	"strings"
	"testing"
)

func TestEstimate_Empty(t *testing.T) {
	if got := Estimate(""); got != 0 {
		t.Fatalf("Estimate(\"\") = %d, want 0", got)
	}
}

func TestEstimate_ASCII(t *testing.T) {
	// 100 ascii bytes -> 103 with the 3% allowance
	s := strings.Repeat("a", 100)
	if got := Estimate(s); got != 103 {
		t.Fatalf("Estimate(100 ascii) = %d, want 103", got)
	}
}

func TestEstimate_RoundsUp(t *testing.T) {
	// 1 byte -> ceil(1.03) = 2
	if got := Estimate("a"); got != 2 {
		t.Fatalf("Estimate(1 byte) = %d, want 2", got)
	}
}

func TestEstimate_MultiByte(t *testing.T) {
	// each CJK rune is 3 UTF-8 bytes; estimate reflects encoded bytes not runes
	s := strings.Repeat("世", 100) // 300 bytes
	if got := Estimate(s); got != 309 {
		t.Fatalf("Estimate(300 utf8 bytes) = %d, want 309", got)
	}
}

func TestWithOverhead_Monotonic(t *testing.T) {
	prev := 0
	for n := 0; n < 1000; n++ {
		got := WithOverhead(n)
		if got < prev {
			t.Fatalf("WithOverhead not monotonic at %d: %d < %d", n, got, prev)
		}
		prev = got
	}
}
