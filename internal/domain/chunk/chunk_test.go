package chunk

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit_WindowGeometry(t *testing.T) {
	// size=10, overlap=3 over 15 chars: step 7 gives windows
	// [0,10), [7,15), [14,15).
	chunks := Split("abcdefghijklmno", "a.txt", 10, 3)

	want := []string{"abcdefghij", "hijklmno", "o"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Text != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], c.Text)
		}
		if c.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.Index)
		}
		if c.Filename != "a.txt" {
			t.Errorf("chunk %d: expected filename a.txt, got %q", i, c.Filename)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)
	a := Split(text, "f.md", 200, 40)
	b := Split(text, "f.md", 200, 40)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two splits of the same input differ")
	}
}

func TestSplit_NormalizesWhitespace(t *testing.T) {
	chunks := Split("  hello\t\tworld\n\nagain  ", "w.txt", 100, 10)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello world again" {
		t.Errorf("expected normalized text, got %q", chunks[0].Text)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \r\n"} {
		if got := Split(text, "e.txt", 10, 2); len(got) != 0 {
			t.Errorf("Split(%q): expected no chunks, got %d", text, len(got))
		}
	}
}

func TestSplit_DenseIndicesSkipEmptyWindows(t *testing.T) {
	// size=1, overlap=0 over "a b c": every other window is a lone space
	// that trims away, but kept chunks still get indices 0..N-1.
	chunks := Split("a b c", "d.txt", 1, 0)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d: expected dense index %d, got %d", i, i, c.Index)
		}
	}
}

func TestSplit_OverlapAtLeastSizeForcesFullStep(t *testing.T) {
	// overlap >= size must not stall or walk backwards.
	chunks := Split("abcdefghij", "g.txt", 3, 5)

	want := []string{"abc", "def", "ghi", "j"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Text != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], c.Text)
		}
	}
}

func TestSplit_EmitsTrailingClippedWindow(t *testing.T) {
	// The last window starts before the text end and is clipped to it; it
	// must still be emitted even when earlier windows already covered the
	// tail through overlap.
	chunks := Split("abcdefgh", "t.txt", 4, 1)

	want := []string{"abcd", "defg", "gh"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Text != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], c.Text)
		}
	}
}

func TestSplit_StopsAtTextEnd(t *testing.T) {
	chunks := Split("abcdef", "h.txt", 10, 2)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk for short input, got %d", len(chunks))
	}
	if chunks[0].Text != "abcdef" {
		t.Errorf("expected full text, got %q", chunks[0].Text)
	}
}
