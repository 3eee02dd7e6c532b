// Package reader extracts plain text from uploaded document bytes.
package reader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/paperqa/paperqa/internal/domain"
)

// Supported reports whether the filename's extension can be extracted.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// Extract converts raw document bytes to plain text. PDFs are read page by
// page; text and markdown are decoded as UTF-8 with invalid sequences
// dropped. Anything else fails with domain.ErrUnsupportedFormat.
func Extract(data []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	case ".txt", ".md":
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return "", fmt.Errorf("%s: %w", filename, domain.ErrUnsupportedFormat)
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w: %w", err, domain.ErrUnsupportedFormat)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// a single unreadable page doesn't void the document
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
