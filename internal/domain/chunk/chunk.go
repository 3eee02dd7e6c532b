// Package chunk splits normalized document text into overlapping fixed-size
// passages, the unit of embedding and retrieval.
package chunk

import (
	"strings"

	"github.com/paperqa/paperqa/internal/domain"
)

// Default window geometry, in runes.
const (
	DefaultSize    = 2000
	DefaultOverlap = 200
)

// Normalize collapses every whitespace run to a single space and trims both
// ends. Chunking the same input twice yields identical output because this
// is the only transformation applied before windowing.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split normalizes text and slides a window of size runes across it with
// step = size - overlap. Windows that are empty after trimming are dropped
// without consuming an index, so chunk indices are dense (0..N-1) over the
// kept chunks. Empty-after-normalization input yields no chunks. When
// overlap >= size the step is forced to the full window size so the scan
// always advances.
func Split(text, filename string, size, overlap int) []domain.Chunk {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	// Every window whose start precedes the text end is emitted, including
	// the trailing clipped ones.
	var chunks []domain.Chunk
	idx := 0
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			chunks = append(chunks, domain.Chunk{Text: window, Index: idx, Filename: filename})
			idx++
		}
	}
	return chunks
}
